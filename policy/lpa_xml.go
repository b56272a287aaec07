package policy

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// xmlLPA mirrors the XML LPA shape named in spec section 6:
//
//	PolicyInfo/SigningPeriod/{NotBefore,NotAfter}, RevocationDate,
//	Identifier = urn:oid:..., PolicyDigestAndURI/{PolicyURI, PolicyDigest/{DigestMethod,DigestValue}}
type xmlLPA struct {
	XMLName    xml.Name        `xml:"signaturePolicies"`
	NextUpdate string          `xml:"nextUpdate"`
	PolicyInfo []xmlPolicyInfo `xml:"policyInfo"`
}

type xmlPolicyInfo struct {
	Identifier     string             `xml:"Identifier"`
	SigningPeriod  xmlSigningPeriod   `xml:"SigningPeriod"`
	RevocationDate string             `xml:"RevocationDate"`
	DigestAndURI   xmlPolicyDigestURI `xml:"PolicyDigestAndURI"`
}

type xmlSigningPeriod struct {
	NotBefore string `xml:"NotBefore"`
	NotAfter  string `xml:"NotAfter"`
}

type xmlPolicyDigestURI struct {
	PolicyURI    string        `xml:"PolicyURI"`
	PolicyDigest xmlPolicyHash `xml:"PolicyDigest"`
}

type xmlPolicyHash struct {
	DigestMethod string `xml:"DigestMethod"`
	DigestValue  string `xml:"DigestValue"`
}

// xmlencDigestOID maps the xmlenc/XML-DSig digest method URIs the ETSI/LPA
// XML format uses to the equivalent ASN.1 OID, per spec section 3's
// normalization rule ("XML uses xmlenc URIs ... normalized to OIDs").
var xmlencDigestOID = map[string]string{
	"http://www.w3.org/2000/09/xmldsig#sha1":     "1.3.14.3.2.26",
	"http://www.w3.org/2001/04/xmlenc#sha256":    "2.16.840.1.101.3.4.2.1",
	"http://www.w3.org/2001/04/xmldsig-more#sha384": "2.16.840.1.101.3.4.2.2",
	"http://www.w3.org/2001/04/xmlenc#sha512":    "2.16.840.1.101.3.4.2.3",
}

func normalizeDigestURI(uri string) string {
	if oid, ok := xmlencDigestOID[uri]; ok {
		return oid
	}
	return uri
}

func parseXMLTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("policy: unrecognized XML time %q", v)
}

// ParseLPAXML parses the XML LPA format named in spec section 6.
func ParseLPAXML(data []byte) (*Lpa, error) {
	var doc xmlLPA
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: lpa xml: %w", err)
	}

	lpa := &Lpa{Version: 2}
	if doc.NextUpdate != "" {
		t, err := parseXMLTime(doc.NextUpdate)
		if err != nil {
			return nil, err
		}
		lpa.NextUpdate = t
	}

	for _, pi := range doc.PolicyInfo {
		entry := PolicyInfo{
			PolicyOID: strings.TrimPrefix(pi.Identifier, "urn:oid:"),
			PolicyURI: pi.DigestAndURI.PolicyURI,
		}
		var err error
		entry.SigningNotBefore, err = parseXMLTime(pi.SigningPeriod.NotBefore)
		if err != nil {
			return nil, err
		}
		entry.SigningNotAfter, err = parseXMLTime(pi.SigningPeriod.NotAfter)
		if err != nil {
			return nil, err
		}
		entry.RevocationDate, err = parseXMLTime(pi.RevocationDate)
		if err != nil {
			return nil, err
		}
		entry.PolicyDigest.AlgOID = normalizeDigestURI(pi.DigestAndURI.PolicyDigest.DigestMethod)
		if raw := pi.DigestAndURI.PolicyDigest.DigestValue; raw != "" {
			b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("policy: policyDigest value: %w", err)
			}
			entry.PolicyDigest.Value = b
		}
		lpa.Policies = append(lpa.Policies, entry)
	}

	return lpa, nil
}

// xmlETSIPolicy mirrors the ETSI signature-policy constraints document named
// in spec section 4.9: MandatedSignedQProperties/QPropertyID,
// MandatedUnsignedQProperties/QPropertyID, AlgAndLength/{AlgId,MinKeyLength}.
type xmlETSIPolicy struct {
	XMLName                    xml.Name          `xml:"SignaturePolicy"`
	PolicyOID                  string            `xml:"SignPolicyInfo>SignPolicyIdentifier>Identifier"`
	MandatedSignedQProperties  xmlQPropertyList  `xml:"SignPolicyInfo>MandatedSignedQProperties"`
	MandatedUnsignedQProperties xmlQPropertyList `xml:"SignPolicyInfo>MandatedUnsignedQProperties"`
	AlgAndLength               []xmlAlgAndLength `xml:"SignPolicyInfo>SignPolicyExtensions>AlgAndLength"`
}

type xmlQPropertyList struct {
	QPropertyID []string `xml:"QPropertyID"`
}

type xmlAlgAndLength struct {
	AlgID        string `xml:"AlgId"`
	MinKeyLength int    `xml:"MinKeyLength"`
}

// algIDToken maps ETSI AlgId URIs/OIDs to the normalized tokens spec section
// 4.9 enforces against ("rsa-sha256", "ecdsa-sha384", ...).
var algIDToken = map[string]string{
	"1.2.840.113549.1.1.5":  "rsa-sha1",
	"1.2.840.113549.1.1.11": "rsa-sha256",
	"1.2.840.113549.1.1.12": "rsa-sha384",
	"1.2.840.113549.1.1.13": "rsa-sha512",
	"1.2.840.10045.4.1":     "ecdsa-sha1",
	"1.2.840.10045.4.3.1":   "ecdsa-sha224",
	"1.2.840.10045.4.3.2":   "ecdsa-sha256",
	"1.2.840.10045.4.3.3":   "ecdsa-sha384",
	"1.2.840.10045.4.3.4":   "ecdsa-sha512",
}

// ParseETSIConstraints parses an ETSI signature-policy XML document into the
// normalized ETSIConstraints spec section 3/4.9 names.
func ParseETSIConstraints(data []byte) (*ETSIConstraints, error) {
	var doc xmlETSIPolicy
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: etsi constraints xml: %w", err)
	}

	c := &ETSIConstraints{
		PolicyOID:              strings.TrimPrefix(strings.TrimSpace(doc.PolicyOID), "urn:oid:"),
		MandatedSignedQProps:   map[string]bool{},
		MandatedUnsignedQProps: map[string]bool{},
	}
	for _, p := range doc.MandatedSignedQProperties.QPropertyID {
		c.MandatedSignedQProps[p] = true
	}
	for _, p := range doc.MandatedUnsignedQProperties.QPropertyID {
		c.MandatedUnsignedQProps[p] = true
	}
	for _, al := range doc.AlgAndLength {
		token, ok := algIDToken[al.AlgID]
		if !ok {
			token = al.AlgID
		}
		c.AlgConstraints = append(c.AlgConstraints, AlgConstraint{Token: token, MinKeyLength: al.MinKeyLength})
	}
	return c, nil
}

// SignatureAlgToken normalizes a (signature OID, digest OID) pair to the
// token AlgConstraint.Token compares against.
func SignatureAlgToken(sigOID, digestOID string) string {
	switch {
	case strings.HasPrefix(sigOID, "1.2.840.113549.1.1"):
		return "rsa-" + digestName(digestOID)
	case strings.HasPrefix(sigOID, "1.2.840.10045.4"):
		return "ecdsa-" + digestName(digestOID)
	default:
		return sigOID
	}
}

func digestName(oid string) string {
	switch oid {
	case "1.3.14.3.2.26":
		return "sha1"
	case "2.16.840.1.101.3.4.2.4":
		return "sha224"
	case "2.16.840.1.101.3.4.2.1":
		return "sha256"
	case "2.16.840.1.101.3.4.2.2":
		return "sha384"
	case "2.16.840.1.101.3.4.2.3":
		return "sha512"
	default:
		return oid
	}
}
