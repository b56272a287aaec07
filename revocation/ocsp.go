package revocation

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/sigalg"
	"github.com/digitorus/pdfsign/x509model"
)

// CertID is RFC 6960's CertID SEQUENCE{hashAlgorithm, issuerNameHash,
// issuerKeyHash, serialNumber}.
type CertID struct {
	HashAlgorithm  der.OID
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// BuildRequest builds a minimal OCSPRequest DER for a single CertID, using
// sha1 over issuer name/key per RFC 6960's conventional choice (most
// responders, including ICP-Brasil's, only index by the sha1 form).
func BuildRequest(cert, issuer *x509model.Certificate) ([]byte, CertID, error) {
	nameHash, err := sigalg.Digest(sigalg.OIDSHA1, issuer.Subject.Raw)
	if err != nil {
		return nil, CertID{}, err
	}
	keyHash, err := sigalg.Digest(sigalg.OIDSHA1, issuer.SPKI.KeyBytes)
	if err != nil {
		return nil, CertID{}, err
	}
	certID := CertID{
		HashAlgorithm:  sigalg.OIDSHA1,
		IssuerNameHash: nameHash,
		IssuerKeyHash:  keyHash,
		SerialNumber:   cert.SerialRaw,
	}

	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) { // OCSPRequest
		b.AddSequence(func(b *der.Builder) { // tbsRequest
			b.AddSequence(func(b *der.Builder) { // requestList[0]
				b.AddSequence(func(b *der.Builder) { // Request
					b.AddSequence(func(b *der.Builder) { // reqCert (CertID)
						b.AddSequence(func(b *der.Builder) {
							b.AddOID(certID.HashAlgorithm)
							b.AddNull()
						})
						b.AddOctetString(certID.IssuerNameHash)
						b.AddOctetString(certID.IssuerKeyHash)
						b.AddBigInt(certID.SerialNumber)
					})
				})
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, CertID{}, fmt.Errorf("ocsp: building request: %w", err)
	}
	return out, certID, nil
}

// SingleResponse is one entry of an OCSP BasicOCSPResponse's responses list.
type SingleResponse struct {
	CertID     CertID
	Status     Status
	RevokedAt  *time.Time
	ThisUpdate time.Time
	NextUpdate time.Time
	HasNext    bool
}

// ResponderID is the BasicOCSPResponse's responderID CHOICE.
type ResponderID struct {
	ByKeyHash []byte // sha1 of the responder's public key
	ByName    *x509model.Name
}

// BasicOCSPResponse is RFC 6960's BasicOCSPResponse, reduced to what the
// spec's OcspResponse data model names: tbs_der, sig_alg, sig_bits, certs,
// responder_id, produced_at, singles.
type BasicOCSPResponse struct {
	TBSDer      []byte
	ResponderID ResponderID
	ProducedAt  time.Time
	Responses   []SingleResponse
	Certs       []*x509model.Certificate
	SigAlg      x509model.AlgorithmIdentifier
	SigBits     der.BitString
}

// OCSPResponse is the spec's OcspResponse: an outer response status plus, for
// status=successful, the BasicOCSPResponse.
type OCSPResponse struct {
	Status ResponseStatus
	Basic  *BasicOCSPResponse
}

// ResponseStatus is OCSPResponseStatus per RFC 6960 section 4.2.1.
type ResponseStatus int

const (
	ResponseSuccessful ResponseStatus = 0
	ResponseMalformedRequest ResponseStatus = 1
	ResponseInternalError    ResponseStatus = 2
	ResponseTryLater         ResponseStatus = 3
	ResponseSigRequired      ResponseStatus = 5
	ResponseUnauthorized     ResponseStatus = 6
)

// ParseResponse decodes an OCSPResponse SEQUENCE{responseStatus,
// responseBytes [0] EXPLICIT OPTIONAL}.
func ParseResponse(data []byte) (*OCSPResponse, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("ocsp: %w", err)
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("ocsp: %w", err)
	}
	statusVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("ocsp: missing responseStatus: %w", err)
	}
	statusInt, err := statusVal.Int()
	if err != nil {
		return nil, fmt.Errorf("ocsp: responseStatus: %w", err)
	}
	resp := &OCSPResponse{Status: ResponseStatus(statusInt)}
	if resp.Status != ResponseSuccessful {
		return resp, nil
	}
	if seq.Empty() {
		return nil, fmt.Errorf("ocsp: successful response missing responseBytes")
	}
	wrapper, err := seq.Next()
	if err != nil {
		return nil, err
	}
	rbVal, err := wrapper.Explicit(0)
	if err != nil {
		return nil, fmt.Errorf("ocsp: responseBytes: %w", err)
	}
	rbSeq, err := rbVal.Sequence()
	if err != nil {
		return nil, fmt.Errorf("ocsp: ResponseBytes: %w", err)
	}
	typeVal, err := rbSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("ocsp: missing responseType: %w", err)
	}
	responseType, err := typeVal.OID()
	if err != nil {
		return nil, fmt.Errorf("ocsp: responseType: %w", err)
	}
	if !responseType.Equal(der.OIDFromInts(1, 3, 6, 1, 5, 5, 7, 48, 1, 1)) { // id-pkix-ocsp-basic
		return nil, fmt.Errorf("ocsp: unsupported responseType %s", responseType)
	}
	respVal, err := rbSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("ocsp: missing response: %w", err)
	}
	respOctets, err := respVal.OctetString()
	if err != nil {
		return nil, fmt.Errorf("ocsp: response is not an OCTET STRING: %w", err)
	}
	basic, err := parseBasicOCSPResponse(respOctets)
	if err != nil {
		return nil, err
	}
	resp.Basic = basic
	return resp, nil
}

// ParseBasicOCSPResponse decodes a bare BasicOCSPResponse, the form embedded
// directly (without the OCSPResponse envelope) in a CAdES
// revocation-values unsigned attribute.
func ParseBasicOCSPResponse(data []byte) (*BasicOCSPResponse, error) {
	return parseBasicOCSPResponse(data)
}

func parseBasicOCSPResponse(data []byte) (*BasicOCSPResponse, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("basicOCSPResponse: %w", err)
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("basicOCSPResponse: %w", err)
	}
	tbsVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("basicOCSPResponse: missing tbsResponseData: %w", err)
	}
	basic, err := parseResponseData(tbsVal)
	if err != nil {
		return nil, err
	}

	sigAlgVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("basicOCSPResponse: missing signatureAlgorithm: %w", err)
	}
	basic.SigAlg, err = parseAlgFromValue(sigAlgVal)
	if err != nil {
		return nil, err
	}

	sigVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("basicOCSPResponse: missing signature: %w", err)
	}
	basic.SigBits, err = sigVal.BitString()
	if err != nil {
		return nil, fmt.Errorf("basicOCSPResponse: signature is not a BIT STRING: %w", err)
	}

	if !seq.Empty() {
		certsWrapper, err := seq.Next()
		if err != nil {
			return nil, err
		}
		if certsWrapper.IsContextTag(0) {
			certsVal, err := certsWrapper.Explicit(0)
			if err != nil {
				return nil, fmt.Errorf("basicOCSPResponse: certs: %w", err)
			}
			certsSeq, err := certsVal.Sequence()
			if err != nil {
				return nil, fmt.Errorf("basicOCSPResponse: certs: %w", err)
			}
			for !certsSeq.Empty() {
				cv, err := certsSeq.Next()
				if err != nil {
					return nil, err
				}
				cert, err := x509model.ParseCertificate(cv.FullBytes)
				if err != nil {
					continue
				}
				basic.Certs = append(basic.Certs, cert)
			}
		}
	}

	return basic, nil
}

func parseAlgFromValue(v der.Value) (x509model.AlgorithmIdentifier, error) {
	seq, err := v.Sequence()
	if err != nil {
		return x509model.AlgorithmIdentifier{}, err
	}
	oidVal, err := seq.Next()
	if err != nil {
		return x509model.AlgorithmIdentifier{}, err
	}
	oid, err := oidVal.OID()
	if err != nil {
		return x509model.AlgorithmIdentifier{}, err
	}
	var params []byte
	if !seq.Empty() {
		p, err := seq.Next()
		if err == nil {
			params = p.FullBytes
		}
	}
	return x509model.AlgorithmIdentifier{Algorithm: oid, Params: params}, nil
}

func parseResponseData(v der.Value) (*BasicOCSPResponse, error) {
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("responseData: %w", err)
	}
	basic := &BasicOCSPResponse{TBSDer: v.FullBytes}

	cur, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("responseData: empty: %w", err)
	}
	if cur.IsContextTag(0) {
		// version [0] EXPLICIT INTEGER DEFAULT v1, rarely present
		cur, err = seq.Next()
		if err != nil {
			return nil, fmt.Errorf("responseData: missing responderID: %w", err)
		}
	}

	basic.ResponderID, err = parseResponderID(cur)
	if err != nil {
		return nil, fmt.Errorf("responseData: responderID: %w", err)
	}

	producedAtVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("responseData: missing producedAt: %w", err)
	}
	basic.ProducedAt, err = producedAtVal.GeneralizedTime()
	if err != nil {
		return nil, fmt.Errorf("responseData: producedAt: %w", err)
	}

	responsesVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("responseData: missing responses: %w", err)
	}
	respSeq, err := responsesVal.Sequence()
	if err != nil {
		return nil, fmt.Errorf("responseData: responses: %w", err)
	}
	for !respSeq.Empty() {
		srVal, err := respSeq.Next()
		if err != nil {
			return nil, err
		}
		sr, err := parseSingleResponse(srVal)
		if err != nil {
			return nil, fmt.Errorf("responseData: singleResponse: %w", err)
		}
		basic.Responses = append(basic.Responses, sr)
	}

	return basic, nil
}

func parseResponderID(v der.Value) (ResponderID, error) {
	if v.IsContextTag(1) {
		inner, err := v.Explicit(1) // byName [1] EXPLICIT Name
		if err != nil {
			return ResponderID{}, err
		}
		name, err := x509model.ParseName(inner)
		if err != nil {
			return ResponderID{}, err
		}
		return ResponderID{ByName: &name}, nil
	}
	if v.IsContextTag(2) {
		inner, err := v.Explicit(2) // byKey [2] EXPLICIT OCTET STRING (sha1 of SPKI)
		if err != nil {
			return ResponderID{}, err
		}
		keyHash, err := inner.OctetString()
		if err != nil {
			return ResponderID{}, err
		}
		return ResponderID{ByKeyHash: keyHash}, nil
	}
	return ResponderID{}, fmt.Errorf("unrecognized responderID choice, tag %d", v.Tag)
}

func parseSingleResponse(v der.Value) (SingleResponse, error) {
	seq, err := v.Sequence()
	if err != nil {
		return SingleResponse{}, err
	}
	certIDVal, err := seq.Next()
	if err != nil {
		return SingleResponse{}, fmt.Errorf("missing certID: %w", err)
	}
	certID, err := parseCertID(certIDVal)
	if err != nil {
		return SingleResponse{}, fmt.Errorf("certID: %w", err)
	}
	sr := SingleResponse{CertID: certID}

	statusVal, err := seq.Next()
	if err != nil {
		return SingleResponse{}, fmt.Errorf("missing certStatus: %w", err)
	}
	switch {
	case statusVal.IsContextTag(0): // good [0] IMPLICIT NULL
		sr.Status = StatusGood
	case statusVal.IsContextTag(1): // revoked [1] IMPLICIT RevokedInfo
		sr.Status = StatusRevoked
		inner, err := statusVal.Implicit(1, true, der.TagSequence)
		if err == nil {
			revSeq, err := inner.Sequence()
			if err == nil && !revSeq.Empty() {
				timeVal, err := revSeq.Next()
				if err == nil {
					t, err := timeVal.AnyTime()
					if err == nil {
						sr.RevokedAt = &t
					}
				}
			}
		}
	case statusVal.IsContextTag(2): // unknown [2] IMPLICIT NULL
		sr.Status = StatusUnknown
	}

	thisUpdateVal, err := seq.Next()
	if err != nil {
		return SingleResponse{}, fmt.Errorf("missing thisUpdate: %w", err)
	}
	sr.ThisUpdate, err = thisUpdateVal.GeneralizedTime()
	if err != nil {
		return SingleResponse{}, fmt.Errorf("thisUpdate: %w", err)
	}

	if !seq.Empty() {
		peek, ok := seq.PeekTag()
		if ok && (der.Value{Tag: peek}).IsContextTag(0) {
			nuWrapper, err := seq.Next()
			if err != nil {
				return SingleResponse{}, err
			}
			nuVal, err := nuWrapper.Explicit(0)
			if err == nil {
				sr.NextUpdate, err = nuVal.GeneralizedTime()
				if err == nil {
					sr.HasNext = true
				}
			}
		}
	}

	return sr, nil
}

func parseCertID(v der.Value) (CertID, error) {
	seq, err := v.Sequence()
	if err != nil {
		return CertID{}, err
	}
	algVal, err := seq.Next()
	if err != nil {
		return CertID{}, fmt.Errorf("missing hashAlgorithm: %w", err)
	}
	alg, err := parseAlgFromValue(algVal)
	if err != nil {
		return CertID{}, err
	}
	nameHashVal, err := seq.Next()
	if err != nil {
		return CertID{}, fmt.Errorf("missing issuerNameHash: %w", err)
	}
	nameHash, err := nameHashVal.OctetString()
	if err != nil {
		return CertID{}, fmt.Errorf("issuerNameHash: %w", err)
	}
	keyHashVal, err := seq.Next()
	if err != nil {
		return CertID{}, fmt.Errorf("missing issuerKeyHash: %w", err)
	}
	keyHash, err := keyHashVal.OctetString()
	if err != nil {
		return CertID{}, fmt.Errorf("issuerKeyHash: %w", err)
	}
	serialVal, err := seq.Next()
	if err != nil {
		return CertID{}, fmt.Errorf("missing serialNumber: %w", err)
	}
	serial, err := serialVal.BigInt()
	if err != nil {
		return CertID{}, fmt.Errorf("serialNumber: %w", err)
	}
	return CertID{HashAlgorithm: alg.Algorithm, IssuerNameHash: nameHash, IssuerKeyHash: keyHash, SerialNumber: serial}, nil
}

// MatchSingleResponse finds the SingleResponse matching want among resp's
// responses, per spec's "match SingleResponse".
func MatchSingleResponse(resp *BasicOCSPResponse, want CertID) (SingleResponse, bool) {
	for _, sr := range resp.Responses {
		if sr.CertID.SerialNumber.Cmp(want.SerialNumber) == 0 &&
			string(sr.CertID.IssuerNameHash) == string(want.IssuerNameHash) &&
			string(sr.CertID.IssuerKeyHash) == string(want.IssuerKeyHash) {
			return sr, true
		}
	}
	return SingleResponse{}, false
}

// FindResponderCert locates the certificate among candidates (the embedded
// resp.Certs plus any out-of-band candidates, e.g. the issuer itself, which
// ICP-Brasil allows as an implicit "delegated to self" responder) that
// matches resp's responderID, per spec's "verify responder".
func FindResponderCert(resp *BasicOCSPResponse, candidates []*x509model.Certificate) (*x509model.Certificate, bool) {
	all := append(append([]*x509model.Certificate{}, resp.Certs...), candidates...)
	for _, c := range all {
		if resp.ResponderID.ByName != nil && c.Subject.Equal(*resp.ResponderID.ByName) {
			return c, true
		}
		if resp.ResponderID.ByKeyHash != nil {
			hash, err := sigalg.Digest(sigalg.OIDSHA1, c.SPKI.KeyBytes)
			if err == nil && string(hash) == string(resp.ResponderID.ByKeyHash) {
				return c, true
			}
		}
	}
	return nil, false
}

// VerifyOCSPResponse verifies the BasicOCSPResponse's own signature against
// the matched responder certificate, per spec's "verify responder" +
// "classify good/revoked/unknown".
func VerifyOCSPResponse(resp *BasicOCSPResponse, responder *x509model.Certificate) bool {
	return sigalg.Verify(resp.SigAlg, responder.SPKI, resp.TBSDer, resp.SigBits.RightAlign())
}

// randomNonce returns cryptographically random bytes for an OCSP nonce
// extension, sized per RFC 8954's recommendation.
func randomNonce() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
