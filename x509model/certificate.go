package x509model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/digitorus/pdfsign/der"
)

// AlgorithmIdentifier is an AlgorithmIdentifier SEQUENCE { algorithm OID,
// parameters ANY OPTIONAL }. Params keeps the raw encoding of whatever
// followed the OID (NULL, an RSASSA-PSS-params SEQUENCE, absent, ...);
// package sigalg is the only consumer that interprets it.
type AlgorithmIdentifier struct {
	Algorithm der.OID
	Params    []byte // FullBytes of the parameters element, or nil if absent
}

func parseAlgorithmIdentifier(v der.Value) (AlgorithmIdentifier, error) {
	seq, err := v.Sequence()
	if err != nil {
		return AlgorithmIdentifier{}, fmt.Errorf("algorithmIdentifier: %w", err)
	}
	oidVal, err := seq.Next()
	if err != nil {
		return AlgorithmIdentifier{}, fmt.Errorf("algorithmIdentifier: missing oid: %w", err)
	}
	oid, err := oidVal.OID()
	if err != nil {
		return AlgorithmIdentifier{}, err
	}
	var params []byte
	if !seq.Empty() {
		p, err := seq.Next()
		if err != nil {
			return AlgorithmIdentifier{}, err
		}
		params = p.FullBytes
	}
	return AlgorithmIdentifier{Algorithm: oid, Params: params}, nil
}

// SubjectPublicKeyInfo is the SPKI structure from the spec's X509Certificate
// data model: { alg, params, key_bytes }.
type SubjectPublicKeyInfo struct {
	Algorithm AlgorithmIdentifier
	KeyBytes  []byte // the right-aligned BIT STRING content (the encoded key)
	Raw       []byte // full SPKI DER, for SKI computation when absent
}

func parseSPKI(v der.Value) (SubjectPublicKeyInfo, error) {
	seq, err := v.Sequence()
	if err != nil {
		return SubjectPublicKeyInfo{}, fmt.Errorf("spki: %w", err)
	}
	algVal, err := seq.Next()
	if err != nil {
		return SubjectPublicKeyInfo{}, fmt.Errorf("spki: missing algorithm: %w", err)
	}
	alg, err := parseAlgorithmIdentifier(algVal)
	if err != nil {
		return SubjectPublicKeyInfo{}, err
	}
	bitVal, err := seq.Next()
	if err != nil {
		return SubjectPublicKeyInfo{}, fmt.Errorf("spki: missing public key: %w", err)
	}
	bs, err := bitVal.BitString()
	if err != nil {
		return SubjectPublicKeyInfo{}, fmt.Errorf("spki: public key is not a BIT STRING: %w", err)
	}
	return SubjectPublicKeyInfo{Algorithm: alg, KeyBytes: bs.RightAlign(), Raw: v.FullBytes}, nil
}

// Certificate is the X509Certificate data model from the spec: TBS bytes kept
// byte-exact, subject/issuer as DER-canonical Names, validity window, SPKI,
// signature algorithm/value, and the raw extension set.
type Certificate struct {
	TBSDer     []byte
	Version    int64 // 0-indexed per the DER encoding (v1=0, v3=2)
	SerialRaw  *big.Int
	Subject    Name
	Issuer     Name
	NotBefore  time.Time
	NotAfter   time.Time
	SPKI       SubjectPublicKeyInfo
	SigAlg     AlgorithmIdentifier
	SigBits    der.BitString
	Extensions ExtensionSet
	Raw        []byte // full Certificate DER
}

// ParseCertificate parses a Certificate SEQUENCE { tbsCertificate,
// signatureAlgorithm, signatureValue }.
func ParseCertificate(data []byte) (*Certificate, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	return parseCertificateValue(v)
}

func parseCertificateValue(v der.Value) (*Certificate, error) {
	outer, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	tbsVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("certificate: missing tbsCertificate: %w", err)
	}
	cert, err := parseTBS(tbsVal)
	if err != nil {
		return nil, err
	}

	sigAlgVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("certificate: missing signatureAlgorithm: %w", err)
	}
	cert.SigAlg, err = parseAlgorithmIdentifier(sigAlgVal)
	if err != nil {
		return nil, err
	}

	sigVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("certificate: missing signatureValue: %w", err)
	}
	cert.SigBits, err = sigVal.BitString()
	if err != nil {
		return nil, fmt.Errorf("certificate: signatureValue is not a BIT STRING: %w", err)
	}

	cert.Raw = v.FullBytes
	return cert, nil
}

func parseTBS(v der.Value) (*Certificate, error) {
	tbsSeq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: %w", err)
	}

	cert := &Certificate{TBSDer: v.FullBytes}

	first, err := tbsSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: empty: %w", err)
	}
	if first.IsContextTag(0) {
		// version [0] EXPLICIT INTEGER DEFAULT v1
		inner, err := first.Explicit(0)
		if err != nil {
			return nil, fmt.Errorf("tbsCertificate: version: %w", err)
		}
		cert.Version, err = inner.Int()
		if err != nil {
			return nil, fmt.Errorf("tbsCertificate: version: %w", err)
		}
		first, err = tbsSeq.Next()
		if err != nil {
			return nil, fmt.Errorf("tbsCertificate: missing serialNumber: %w", err)
		}
	}

	cert.SerialRaw, err = first.BigInt()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: serialNumber: %w", err)
	}

	sigAlgVal, err := tbsSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: missing signature: %w", err)
	}
	_, err = parseAlgorithmIdentifier(sigAlgVal)
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: signature: %w", err)
	}

	issuerVal, err := tbsSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: missing issuer: %w", err)
	}
	cert.Issuer, err = ParseName(issuerVal)
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: issuer: %w", err)
	}

	validityVal, err := tbsSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: missing validity: %w", err)
	}
	cert.NotBefore, cert.NotAfter, err = parseValidity(validityVal)
	if err != nil {
		return nil, err
	}

	subjectVal, err := tbsSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: missing subject: %w", err)
	}
	cert.Subject, err = ParseName(subjectVal)
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: subject: %w", err)
	}

	spkiVal, err := tbsSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertificate: missing subjectPublicKeyInfo: %w", err)
	}
	cert.SPKI, err = parseSPKI(spkiVal)
	if err != nil {
		return nil, err
	}

	for !tbsSeq.Empty() {
		el, err := tbsSeq.Next()
		if err != nil {
			return nil, err
		}
		switch {
		case el.IsContextTag(1), el.IsContextTag(2):
			// issuerUniqueID / subjectUniqueID, rarely present, not needed.
			continue
		case el.IsContextTag(3):
			extsVal, err := el.Explicit(3)
			if err != nil {
				return nil, fmt.Errorf("tbsCertificate: extensions: %w", err)
			}
			cert.Extensions, err = parseExtensions(extsVal)
			if err != nil {
				return nil, fmt.Errorf("tbsCertificate: extensions: %w", err)
			}
		}
	}

	return cert, nil
}

func parseValidity(v der.Value) (time.Time, time.Time, error) {
	seq, err := v.Sequence()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("validity: %w", err)
	}
	nb, err := seq.Next()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("validity: missing notBefore: %w", err)
	}
	notBefore, err := nb.AnyTime()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("validity: notBefore: %w", err)
	}
	na, err := seq.Next()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("validity: missing notAfter: %w", err)
	}
	notAfter, err := na.AnyTime()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("validity: notAfter: %w", err)
	}
	return notBefore, notAfter, nil
}

// ValidAt reports whether the validity window covers t (inclusive).
func (c *Certificate) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// GetExtension implements the spec's get_extension(oid) -> Option<octet_string>.
func (c *Certificate) GetExtension(oid der.OID) ([]byte, bool) {
	return c.Extensions.Get(oid)
}

// IsSelfIssued reports whether subject and issuer are DER-canonically equal,
// the structural test used before falling back to a signature self-check.
func (c *Certificate) IsSelfIssued() bool {
	return c.Subject.Equal(c.Issuer)
}
