// Package x509model parses X.509 certificates, names and CRLs directly from
// DER, on top of package der, rather than going through crypto/x509.
//
// The reason to keep this independent from crypto/x509 is the same reason
// package der stays independent from encoding/asn1: this module needs the
// TBS bytes exactly as they appeared on the wire (to verify a certificate's
// own signature and to compare issuer/subject DNs byte-for-byte), and it
// needs to walk extensions and name attributes the standard library does not
// expose directly.
package x509model

import (
	"fmt"

	"github.com/digitorus/pdfsign/der"
)

// AttributeTypeAndValue is one RDN component, e.g. CN=Alice.
type AttributeTypeAndValue struct {
	Type  der.OID
	Value string
	Raw   []byte // DER encoding of the AttributeTypeAndValue SEQUENCE
}

// Name is an ordered sequence of RDNs (each RDN itself a SET of
// AttributeTypeAndValue). Equality must be on the DER encoding, never on the
// rendered string, so Raw is kept alongside the parsed attributes.
type Name struct {
	RDNs []RelativeDistinguishedName
	Raw  []byte // full DER encoding of the Name SEQUENCE
}

// RelativeDistinguishedName is one SET OF AttributeTypeAndValue.
type RelativeDistinguishedName struct {
	Attributes []AttributeTypeAndValue
}

// Well-known attribute OIDs used for display and for ICP-Brasil CPF lookup.
var (
	OIDCommonName         = der.OIDFromInts(2, 5, 4, 3)
	OIDSurname            = der.OIDFromInts(2, 5, 4, 4)
	OIDSerialNumber       = der.OIDFromInts(2, 5, 4, 5)
	OIDCountryName        = der.OIDFromInts(2, 5, 4, 6)
	OIDLocalityName       = der.OIDFromInts(2, 5, 4, 7)
	OIDStateOrProvince    = der.OIDFromInts(2, 5, 4, 8)
	OIDOrganizationName   = der.OIDFromInts(2, 5, 4, 10)
	OIDOrganizationalUnit = der.OIDFromInts(2, 5, 4, 11)
	OIDGivenName          = der.OIDFromInts(2, 5, 4, 42)
)

// ParseName parses a Name SEQUENCE (RDNSequence).
func ParseName(v der.Value) (Name, error) {
	seq, err := v.Sequence()
	if err != nil {
		return Name{}, fmt.Errorf("name: %w", err)
	}
	var rdns []RelativeDistinguishedName
	for !seq.Empty() {
		setVal, err := seq.Next()
		if err != nil {
			return Name{}, fmt.Errorf("name: reading RDN: %w", err)
		}
		setReader, err := setVal.SetOf()
		if err != nil {
			return Name{}, fmt.Errorf("name: RDN is not a SET: %w", err)
		}
		var rdn RelativeDistinguishedName
		for !setReader.Empty() {
			atvVal, err := setReader.Next()
			if err != nil {
				return Name{}, fmt.Errorf("name: reading ATV: %w", err)
			}
			atv, err := parseAttributeTypeAndValue(atvVal)
			if err != nil {
				return Name{}, err
			}
			rdn.Attributes = append(rdn.Attributes, atv)
		}
		rdns = append(rdns, rdn)
	}
	return Name{RDNs: rdns, Raw: v.FullBytes}, nil
}

func parseAttributeTypeAndValue(v der.Value) (AttributeTypeAndValue, error) {
	seq, err := v.Sequence()
	if err != nil {
		return AttributeTypeAndValue{}, fmt.Errorf("atv: %w", err)
	}
	typVal, err := seq.Next()
	if err != nil {
		return AttributeTypeAndValue{}, fmt.Errorf("atv: missing type: %w", err)
	}
	oid, err := typVal.OID()
	if err != nil {
		return AttributeTypeAndValue{}, fmt.Errorf("atv: type is not an OID: %w", err)
	}
	valVal, err := seq.Next()
	if err != nil {
		return AttributeTypeAndValue{}, fmt.Errorf("atv: missing value: %w", err)
	}
	str, err := valVal.String()
	if err != nil {
		// some CAs still emit numeric-looking values as INTEGER/other types;
		// fall back to a hex rendering rather than failing the whole name.
		str = fmt.Sprintf("%x", valVal.Bytes)
	}
	return AttributeTypeAndValue{Type: oid, Value: str, Raw: v.FullBytes}, nil
}

// Equal reports canonical DER equality, per spec: "Equality for issuer/subject
// matching is on DER-canonical encoding, never on textual rendering."
func (n Name) Equal(other Name) bool {
	return string(n.Raw) == string(other.Raw)
}

// String renders a human-readable, OpenSSL-like "CN=..,O=.." form for
// reporting only; never use this for equality checks.
func (n Name) String() string {
	s := ""
	for _, rdn := range n.RDNs {
		for _, atv := range rdn.Attributes {
			if s != "" {
				s += ","
			}
			s += attributeLabel(atv.Type) + "=" + atv.Value
		}
	}
	return s
}

func attributeLabel(oid der.OID) string {
	switch {
	case oid.Equal(OIDCommonName):
		return "CN"
	case oid.Equal(OIDSurname):
		return "SN"
	case oid.Equal(OIDSerialNumber):
		return "serialNumber"
	case oid.Equal(OIDCountryName):
		return "C"
	case oid.Equal(OIDLocalityName):
		return "L"
	case oid.Equal(OIDStateOrProvince):
		return "ST"
	case oid.Equal(OIDOrganizationName):
		return "O"
	case oid.Equal(OIDOrganizationalUnit):
		return "OU"
	case oid.Equal(OIDGivenName):
		return "GN"
	default:
		return oid.String()
	}
}

// Get returns the first value for the given attribute OID, if present.
func (n Name) Get(oid der.OID) (string, bool) {
	for _, rdn := range n.RDNs {
		for _, atv := range rdn.Attributes {
			if atv.Type.Equal(oid) {
				return atv.Value, true
			}
		}
	}
	return "", false
}

// CommonName is a convenience accessor for the CN attribute.
func (n Name) CommonName() string {
	cn, _ := n.Get(OIDCommonName)
	return cn
}
