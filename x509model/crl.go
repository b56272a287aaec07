package x509model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/digitorus/pdfsign/der"
)

// RevokedCertificate is one entry of a CRL's revokedCertificates SEQUENCE.
type RevokedCertificate struct {
	Serial         *big.Int
	RevocationDate time.Time
	Extensions     ExtensionSet
}

// CrlFile is the CrlFile data model from the spec: tbs_der, issuer, validity
// window, revoked serials, signature.
type CrlFile struct {
	TBSDer     []byte
	Issuer     Name
	ThisUpdate time.Time
	NextUpdate time.Time
	HasNext    bool
	Revoked    []RevokedCertificate
	Extensions ExtensionSet
	SigAlg     AlgorithmIdentifier
	SigBits    der.BitString
	Raw        []byte
}

// ParseCRL parses a CertificateList SEQUENCE { tbsCertList, signatureAlgorithm,
// signatureValue }.
func ParseCRL(data []byte) (*CrlFile, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("crl: %w", err)
	}
	outer, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("crl: %w", err)
	}

	tbsVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("crl: missing tbsCertList: %w", err)
	}
	crl, err := parseTBSCertList(tbsVal)
	if err != nil {
		return nil, err
	}

	sigAlgVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("crl: missing signatureAlgorithm: %w", err)
	}
	crl.SigAlg, err = parseAlgorithmIdentifier(sigAlgVal)
	if err != nil {
		return nil, err
	}

	sigVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("crl: missing signatureValue: %w", err)
	}
	crl.SigBits, err = sigVal.BitString()
	if err != nil {
		return nil, fmt.Errorf("crl: signatureValue is not a BIT STRING: %w", err)
	}

	crl.Raw = v.FullBytes
	return crl, nil
}

func parseTBSCertList(v der.Value) (*CrlFile, error) {
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: %w", err)
	}
	crl := &CrlFile{TBSDer: v.FullBytes}

	cur, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: empty: %w", err)
	}
	if cur.Is(der.TagInteger) {
		// optional version INTEGER OPTIONAL (v2 requires it, v1 omits it)
		cur, err = seq.Next()
		if err != nil {
			return nil, fmt.Errorf("tbsCertList: missing signature: %w", err)
		}
	}
	// cur now holds the "signature" AlgorithmIdentifier (duplicated outside);
	// skip it, already captured by the outer SigAlg.
	_, err = parseAlgorithmIdentifier(cur)
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: signature: %w", err)
	}

	issuerVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: missing issuer: %w", err)
	}
	crl.Issuer, err = ParseName(issuerVal)
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: issuer: %w", err)
	}

	thisUpdateVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: missing thisUpdate: %w", err)
	}
	crl.ThisUpdate, err = thisUpdateVal.AnyTime()
	if err != nil {
		return nil, fmt.Errorf("tbsCertList: thisUpdate: %w", err)
	}

	if seq.Empty() {
		return crl, nil
	}
	peek, ok := seq.PeekTag()
	if !ok {
		return crl, nil
	}
	if peek == der.TagUTCTime || peek == der.TagGeneralizedTime {
		nextUpdateVal, err := seq.Next()
		if err != nil {
			return nil, err
		}
		crl.NextUpdate, err = nextUpdateVal.AnyTime()
		if err != nil {
			return nil, fmt.Errorf("tbsCertList: nextUpdate: %w", err)
		}
		crl.HasNext = true
	}

	if !seq.Empty() {
		peek, ok := seq.PeekTag()
		if ok && peek == der.TagSequence {
			revokedVal, err := seq.Next()
			if err != nil {
				return nil, err
			}
			crl.Revoked, err = parseRevokedCertificates(revokedVal)
			if err != nil {
				return nil, err
			}
		}
	}

	if !seq.Empty() {
		extWrapper, err := seq.Next()
		if err != nil {
			return nil, err
		}
		if extWrapper.IsContextTag(0) {
			extsVal, err := extWrapper.Explicit(0)
			if err != nil {
				return nil, fmt.Errorf("tbsCertList: crlExtensions: %w", err)
			}
			crl.Extensions, err = parseExtensions(extsVal)
			if err != nil {
				return nil, fmt.Errorf("tbsCertList: crlExtensions: %w", err)
			}
		}
	}

	return crl, nil
}

func parseRevokedCertificates(v der.Value) ([]RevokedCertificate, error) {
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("revokedCertificates: %w", err)
	}
	var out []RevokedCertificate
	for !seq.Empty() {
		entryVal, err := seq.Next()
		if err != nil {
			return nil, err
		}
		entrySeq, err := entryVal.Sequence()
		if err != nil {
			return nil, fmt.Errorf("revokedCertificate: %w", err)
		}
		serialVal, err := entrySeq.Next()
		if err != nil {
			return nil, fmt.Errorf("revokedCertificate: missing serial: %w", err)
		}
		serial, err := serialVal.BigInt()
		if err != nil {
			return nil, fmt.Errorf("revokedCertificate: serial: %w", err)
		}
		dateVal, err := entrySeq.Next()
		if err != nil {
			return nil, fmt.Errorf("revokedCertificate: missing revocationDate: %w", err)
		}
		date, err := dateVal.AnyTime()
		if err != nil {
			return nil, fmt.Errorf("revokedCertificate: revocationDate: %w", err)
		}
		var exts ExtensionSet
		if !entrySeq.Empty() {
			extsVal, err := entrySeq.Next()
			if err == nil {
				exts, _ = parseExtensions(extsVal)
			}
		}
		out = append(out, RevokedCertificate{Serial: serial, RevocationDate: date, Extensions: exts})
	}
	return out, nil
}

// Find returns the revoked-certificate entry for serial, if present.
func (c *CrlFile) Find(serial *big.Int) (RevokedCertificate, bool) {
	for _, r := range c.Revoked {
		if r.Serial.Cmp(serial) == 0 {
			return r, true
		}
	}
	return RevokedCertificate{}, false
}

// ValidAt reports whether t falls within [thisUpdate, nextUpdate) (or is
// simply not before thisUpdate, when nextUpdate is absent).
func (c *CrlFile) ValidAt(t time.Time) bool {
	if t.Before(c.ThisUpdate) {
		return false
	}
	if c.HasNext && !t.Before(c.NextUpdate) {
		return false
	}
	return true
}
