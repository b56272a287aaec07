package x509model

import (
	"fmt"

	"github.com/digitorus/pdfsign/der"
)

// Extension OIDs named in spec section 4.2.
var (
	OIDExtSubjectKeyID     = der.OIDFromInts(2, 5, 29, 14)
	OIDExtKeyUsage         = der.OIDFromInts(2, 5, 29, 15)
	OIDExtSubjectAltName   = der.OIDFromInts(2, 5, 29, 17)
	OIDExtBasicConstraints = der.OIDFromInts(2, 5, 29, 19)
	OIDExtCRLDistPoints    = der.OIDFromInts(2, 5, 29, 31)
	OIDExtAuthorityKeyID   = der.OIDFromInts(2, 5, 29, 35)
	OIDExtAuthorityInfo    = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 1, 1)
	OIDExtExtKeyUsage      = der.OIDFromInts(2, 5, 29, 37)

	OIDAccessMethodOCSP       = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 48, 1)
	OIDAccessMethodCAIssuers  = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 48, 2)

	// ExtKeyUsage purpose OIDs relevant to PDF/document signing.
	OIDEKUAny               = der.OIDFromInts(2, 5, 29, 37, 0)
	OIDEKUServerAuth        = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 3, 1)
	OIDEKUClientAuth        = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 3, 2)
	OIDEKUEmailProtection   = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 3, 4)
	OIDEKUDocumentSigning   = der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 3, 36)
)

// Extension is a single Certificate/CRL extension: OID, criticality flag, and
// the raw content octets (the extnValue's inner OCTET STRING content, not
// re-parsed by this layer).
type Extension struct {
	OID      der.OID
	Critical bool
	Value    []byte // content of the extnValue OCTET STRING
}

// ExtensionSet supports get_extension(oid) -> Option<octet_string> from the
// spec, plus the typed accessors components C7/C8/C9 need.
type ExtensionSet []Extension

// Get returns the raw octets of the named extension, if present.
func (es ExtensionSet) Get(oid der.OID) ([]byte, bool) {
	for _, e := range es {
		if e.OID.Equal(oid) {
			return e.Value, true
		}
	}
	return nil, false
}

func parseExtensions(v der.Value) (ExtensionSet, error) {
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("extensions: %w", err)
	}
	var out ExtensionSet
	for !seq.Empty() {
		extVal, err := seq.Next()
		if err != nil {
			return nil, err
		}
		extSeq, err := extVal.Sequence()
		if err != nil {
			return nil, fmt.Errorf("extension: %w", err)
		}
		oidVal, err := extSeq.Next()
		if err != nil {
			return nil, fmt.Errorf("extension: missing oid: %w", err)
		}
		oid, err := oidVal.OID()
		if err != nil {
			return nil, err
		}
		critical := false
		nextVal, err := extSeq.Next()
		if err != nil {
			return nil, fmt.Errorf("extension: missing value: %w", err)
		}
		if nextVal.Is(der.TagBoolean) {
			critical, err = nextVal.Bool()
			if err != nil {
				return nil, err
			}
			nextVal, err = extSeq.Next()
			if err != nil {
				return nil, fmt.Errorf("extension: missing octet string: %w", err)
			}
		}
		octets, err := nextVal.OctetString()
		if err != nil {
			return nil, fmt.Errorf("extension: value is not an OCTET STRING: %w", err)
		}
		out = append(out, Extension{OID: oid, Critical: critical, Value: octets})
	}
	return out, nil
}

// SubjectKeyID decodes the subjectKeyIdentifier extension (raw key id bytes).
func (es ExtensionSet) SubjectKeyID() ([]byte, bool) {
	raw, ok := es.Get(OIDExtSubjectKeyID)
	if !ok {
		return nil, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return nil, false
	}
	ski, err := v.OctetString()
	if err != nil {
		return nil, false
	}
	return ski, true
}

// AuthorityKeyID decodes the keyIdentifier field of the authorityKeyIdentifier
// extension (the "key identifier branch" named in spec section 4.2).
func (es ExtensionSet) AuthorityKeyID() ([]byte, bool) {
	raw, ok := es.Get(OIDExtAuthorityKeyID)
	if !ok {
		return nil, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return nil, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, false
	}
	for !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			return nil, false
		}
		// keyIdentifier is [0] IMPLICIT OCTET STRING
		if el.IsContextTag(0) {
			inner, err := el.Implicit(0, false, der.TagOctetString)
			if err != nil {
				return nil, false
			}
			octets, err := inner.OctetString()
			if err != nil {
				return nil, false
			}
			return octets, true
		}
	}
	return nil, false
}

// BasicConstraints decodes the basicConstraints extension.
type BasicConstraints struct {
	IsCA       bool
	PathLenSet bool
	PathLen    int64
}

func (es ExtensionSet) BasicConstraints() (BasicConstraints, bool) {
	raw, ok := es.Get(OIDExtBasicConstraints)
	if !ok {
		return BasicConstraints{}, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return BasicConstraints{}, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return BasicConstraints{}, false
	}
	var bc BasicConstraints
	if !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			return BasicConstraints{}, false
		}
		if el.Is(der.TagBoolean) {
			bc.IsCA, _ = el.Bool()
			if !seq.Empty() {
				el, err = seq.Next()
				if err != nil {
					return bc, true
				}
			}
		}
		if el.Is(der.TagInteger) {
			n, err := el.Int()
			if err == nil {
				bc.PathLenSet = true
				bc.PathLen = n
			}
		}
	}
	return bc, true
}

// KeyUsage is the bit flags of the keyUsage extension, named per spec's
// BIT STRING convention (bit 0 = digitalSignature, ... bit 8 = decipherOnly).
type KeyUsage uint16

const (
	KeyUsageDigitalSignature KeyUsage = 1 << iota
	KeyUsageNonRepudiation
	KeyUsageKeyEncipherment
	KeyUsageDataEncipherment
	KeyUsageKeyAgreement
	KeyUsageCertSign
	KeyUsageCRLSign
	KeyUsageEncipherOnly
	KeyUsageDecipherOnly
)

func (es ExtensionSet) KeyUsage() (KeyUsage, bool) {
	raw, ok := es.Get(OIDExtKeyUsage)
	if !ok {
		return 0, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return 0, false
	}
	bs, err := v.BitString()
	if err != nil {
		return 0, false
	}
	var ku KeyUsage
	for byteIdx, b := range bs.Bytes {
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) != 0 {
				ku |= 1 << uint(byteIdx*8+bit)
			}
		}
	}
	return ku, true
}

// Has reports whether all of the given usage bits are set.
func (ku KeyUsage) Has(bit KeyUsage) bool { return ku&bit != 0 }

// ExtendedKeyUsage decodes the extKeyUsage extension into its list of
// purpose OIDs.
func (es ExtensionSet) ExtendedKeyUsage() ([]der.OID, bool) {
	raw, ok := es.Get(OIDExtExtKeyUsage)
	if !ok {
		return nil, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return nil, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, false
	}
	var out []der.OID
	for !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			return out, true
		}
		oid, err := el.OID()
		if err != nil {
			continue
		}
		out = append(out, oid)
	}
	return out, true
}

// CRLDistributionPoint is one entry of the crlDistributionPoints extension,
// reduced to the URIs found in its fullName GeneralNames (the only form the
// spec's revocation engine needs to fetch from).
type CRLDistributionPoint struct {
	URIs []string
}

func (es ExtensionSet) CRLDistributionPoints() ([]CRLDistributionPoint, bool) {
	raw, ok := es.Get(OIDExtCRLDistPoints)
	if !ok {
		return nil, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return nil, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, false
	}
	var out []CRLDistributionPoint
	for !seq.Empty() {
		dpVal, err := seq.Next()
		if err != nil {
			return out, true
		}
		dpSeq, err := dpVal.Sequence()
		if err != nil {
			continue
		}
		var dp CRLDistributionPoint
		for !dpSeq.Empty() {
			el, err := dpSeq.Next()
			if err != nil {
				break
			}
			if !el.IsContextTag(0) {
				continue
			}
			// distributionPoint [0] DistributionPointName ::= CHOICE {
			//   fullName [0] GeneralNames, nameRelativeToCRLIssuer [1] RDN }
			inner, err := el.Implicit(0, true, der.TagSequence)
			if err != nil {
				continue
			}
			names, err := inner.Sequence()
			if err != nil {
				continue
			}
			for !names.Empty() {
				gn, err := names.Next()
				if err != nil {
					break
				}
				if gn.IsContextTag(6) { // uniformResourceIdentifier [6] IA5String
					u, err := gn.Implicit(6, false, der.TagIA5String)
					if err != nil {
						continue
					}
					s, err := u.String()
					if err == nil {
						dp.URIs = append(dp.URIs, s)
					}
				}
			}
		}
		out = append(out, dp)
	}
	return out, true
}

// AIAEntry is one accessDescription of the authorityInfoAccess extension.
type AIAEntry struct {
	Method der.OID
	URI    string
}

func (es ExtensionSet) AuthorityInfoAccess() ([]AIAEntry, bool) {
	raw, ok := es.Get(OIDExtAuthorityInfo)
	if !ok {
		return nil, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return nil, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, false
	}
	var out []AIAEntry
	for !seq.Empty() {
		adVal, err := seq.Next()
		if err != nil {
			break
		}
		adSeq, err := adVal.Sequence()
		if err != nil {
			continue
		}
		methodVal, err := adSeq.Next()
		if err != nil {
			continue
		}
		method, err := methodVal.OID()
		if err != nil {
			continue
		}
		locVal, err := adSeq.Next()
		if err != nil {
			continue
		}
		if !locVal.IsContextTag(6) {
			continue
		}
		uriVal, err := locVal.Implicit(6, false, der.TagIA5String)
		if err != nil {
			continue
		}
		uri, err := uriVal.String()
		if err != nil {
			continue
		}
		out = append(out, AIAEntry{Method: method, URI: uri})
	}
	return out, true
}

// OCSPResponders returns every access description's URI whose method is
// id-ad-ocsp.
func (es ExtensionSet) OCSPResponders() []string {
	entries, ok := es.AuthorityInfoAccess()
	if !ok {
		return nil
	}
	var uris []string
	for _, e := range entries {
		if e.Method.Equal(OIDAccessMethodOCSP) {
			uris = append(uris, e.URI)
		}
	}
	return uris
}

// SubjectAltNameOtherName is a GeneralName CHOICE otherName entry, the form
// ICP-Brasil uses to carry CPF/date-of-birth/voter-ID inside the SAN.
type SubjectAltNameOtherName struct {
	TypeID der.OID
	Value  string
}

func (es ExtensionSet) SubjectAltNameOtherNames() ([]SubjectAltNameOtherName, bool) {
	raw, ok := es.Get(OIDExtSubjectAltName)
	if !ok {
		return nil, false
	}
	v, err := der.Decode(raw)
	if err != nil {
		return nil, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, false
	}
	var out []SubjectAltNameOtherName
	for !seq.Empty() {
		gn, err := seq.Next()
		if err != nil {
			break
		}
		if !gn.IsContextTag(0) { // otherName [0]
			continue
		}
		inner, err := gn.Implicit(0, true, der.TagSequence)
		if err != nil {
			continue
		}
		onSeq, err := inner.Sequence()
		if err != nil {
			continue
		}
		typeVal, err := onSeq.Next()
		if err != nil {
			continue
		}
		typeID, err := typeVal.OID()
		if err != nil {
			continue
		}
		valVal, err := onSeq.Next()
		if err != nil {
			continue
		}
		explicit, err := valVal.Explicit(0)
		if err != nil {
			continue
		}
		s, err := explicit.String()
		if err != nil {
			continue
		}
		out = append(out, SubjectAltNameOtherName{TypeID: typeID, Value: s})
	}
	return out, true
}
