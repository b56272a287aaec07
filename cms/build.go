package cms

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/sigalg"
	"github.com/digitorus/pdfsign/x509model"
)

// BuildRequest carries the inputs to BuildSignedData: a single detached
// SignerInfo over Content's digest, the signer's certificate and chain, and
// the handful of signed/unsigned attributes the verify side (SignerInfo,
// SigningTime, signature-time-stamp) reads back.
type BuildRequest struct {
	Content       []byte // the bytes being signed (the PDF ByteRange gap)
	Hash          crypto.Hash
	Cert          *x509model.Certificate
	Chain         []*x509model.Certificate // intermediates/root to embed alongside Cert
	Signer        crypto.Signer
	SigningTime   time.Time
	CRLs          [][]byte // raw CertificateList DER to embed in the SignedData, if any
	ExtraSignedAttrs []Attribute
	UnsignedAttrs    []Attribute
}

// DigestAlgorithmOID exposes the digest-OID lookup BuildSignedData uses
// internally, for callers (the RFC 3161 request builder) that need the same
// OID without duplicating the table.
func DigestAlgorithmOID(hash crypto.Hash) (der.OID, bool) { return reverseDigestOID(hash) }

// NewAttribute builds an Attribute SEQUENCE{type, SET OF {valueDER}} from an
// already DER-encoded attribute value, for callers outside this package (the
// sign package's Adobe revocationInfoArchival unsigned attribute) that need a
// signed/unsigned attribute this package has no dedicated builder for.
func NewAttribute(oid der.OID, valueDER []byte) (Attribute, error) {
	return attributeFromValueDER(oid, valueDER)
}

// PartialSignedData holds a SignedData whose single SignerInfo has already
// been signed, but whose unsignedAttrs (signature-time-stamp, in practice)
// can still be extended before final encoding. Splitting signing from
// encoding this way means a caller that wants to timestamp the signature
// value never has to sign twice: re-signing would draw a fresh nonce for an
// ECDSA key and produce a signature that no longer matches the timestamp
// token's messageImprint.
type PartialSignedData struct {
	digestOID     der.OID
	sigAlgOID     der.OID
	cert          *x509model.Certificate
	chain         []*x509model.Certificate
	crls          [][]byte
	signedAttrs   []byte
	signature     []byte
	unsignedAttrs []Attribute
}

// Signature returns the raw signature bytes the SignerInfo carries, the
// input to an RFC 3161 signature-time-stamp request.
func (p *PartialSignedData) Signature() []byte { return p.signature }

// AddUnsignedAttr appends an unsigned attribute (e.g. signature-time-stamp)
// to the SignerInfo. Must be called before Finish.
func (p *PartialSignedData) AddUnsignedAttr(a Attribute) {
	p.unsignedAttrs = append(p.unsignedAttrs, a)
}

// Finish encodes the complete SignedData ContentInfo DER.
func (p *PartialSignedData) Finish() ([]byte, error) {
	siDER, err := buildSignerInfoDER(p.cert, p.digestOID, p.signedAttrs, p.sigAlgOID, p.signature, p.unsignedAttrs)
	if err != nil {
		return nil, err
	}

	certDERs := [][]byte{p.cert.Raw}
	for _, c := range p.chain {
		certDERs = append(certDERs, c.Raw)
	}
	certsSet := der.AddSetOfDER(certDERs)
	certsSet[0] = 0xA0 // retag SET (0x31) as [0] IMPLICIT

	sdBld := der.NewBuilder()
	sdBld.AddSequence(func(b *der.Builder) {
		b.AddInt(1) // version
		b.AddRaw(der.AddSetOfDER([][]byte{algorithmIdentifierDER(p.digestOID, true)}))
		b.AddSequence(func(ec *der.Builder) { // encapContentInfo, detached: no eContent
			ec.AddOID(OIDData)
		})
		b.AddRaw(certsSet)
		if len(p.crls) > 0 {
			crlsSet := der.AddSetOfDER(p.crls)
			crlsSet[0] = 0xA1 // retag SET (0x31) as [1] IMPLICIT
			b.AddRaw(crlsSet)
		}
		b.AddRaw(der.AddSetOfDER([][]byte{siDER}))
	})
	sdDER, err := sdBld.Bytes()
	if err != nil {
		return nil, fmt.Errorf("cms: build: signedData: %w", err)
	}

	outerBld := der.NewBuilder()
	outerBld.AddSequence(func(b *der.Builder) {
		b.AddOID(OIDSignedData)
		b.AddExplicit(0, func(inner *der.Builder) {
			inner.AddRaw(sdDER)
		})
	})
	return outerBld.Bytes()
}

// BuildPartialSignedData signs Content's digest into a single detached
// SignerInfo (contentType, messageDigest, signingTime, signingCertificateV2
// signed attributes), returning a PartialSignedData the caller can still
// attach a signature-time-stamp unsigned attribute to before calling Finish.
func BuildPartialSignedData(req BuildRequest) (*PartialSignedData, error) {
	if req.Cert == nil {
		return nil, fmt.Errorf("cms: build: certificate is required")
	}
	if req.Signer == nil {
		return nil, fmt.Errorf("cms: build: signer is required")
	}
	if req.Hash == 0 {
		req.Hash = crypto.SHA256
	}
	digestOID, ok := reverseDigestOID(req.Hash)
	if !ok {
		return nil, fmt.Errorf("cms: build: unsupported digest %v", req.Hash)
	}

	h := req.Hash.New()
	h.Write(req.Content)
	msgDigest := h.Sum(nil)

	signingCertAttr, err := signingCertificateV2Attribute(req.Cert, req.Hash)
	if err != nil {
		return nil, fmt.Errorf("cms: build: signing certificate attribute: %w", err)
	}

	contentTypeAttr, err := attributeFromValueDER(OIDAttrContentType, oidValueDER(OIDData))
	if err != nil {
		return nil, fmt.Errorf("cms: build: content-type attribute: %w", err)
	}
	messageDigestAttr, err := attributeFromValueDER(OIDAttrMessageDigest, octetStringValueDER(msgDigest))
	if err != nil {
		return nil, fmt.Errorf("cms: build: message-digest attribute: %w", err)
	}
	signingTimeAttr, err := attributeFromValueDER(OIDAttrSigningTime, generalizedTimeValueDER(req.SigningTime))
	if err != nil {
		return nil, fmt.Errorf("cms: build: signing-time attribute: %w", err)
	}

	signedAttrs := []Attribute{contentTypeAttr, messageDigestAttr, signingTimeAttr, signingCertAttr}
	signedAttrs = append(signedAttrs, req.ExtraSignedAttrs...)
	signedAttrsDER, signedAttrsSetDER, err := encodeSignedAttrs(signedAttrs)
	if err != nil {
		return nil, fmt.Errorf("cms: build: signed attrs: %w", err)
	}

	// RFC 5652 section 5.4: the bytes actually signed are the DER of the
	// attribute SET tagged as a universal SET OF, not as the [0] IMPLICIT the
	// SignerInfo wire form uses.
	toSign := signedAttrsSetDER
	sigAlgOID, err := sigalg.PickSignatureAlgorithm(req.Cert.SPKI, req.Hash)
	if err != nil {
		return nil, fmt.Errorf("cms: build: %w", err)
	}
	signDigest := req.Hash.New()
	signDigest.Write(toSign)
	signature, err := req.Signer.Sign(rand.Reader, signDigest.Sum(nil), req.Hash)
	if err != nil {
		return nil, fmt.Errorf("cms: build: sign: %w", err)
	}

	return &PartialSignedData{
		digestOID:     digestOID,
		sigAlgOID:     sigAlgOID,
		cert:          req.Cert,
		chain:         req.Chain,
		crls:          req.CRLs,
		signedAttrs:   signedAttrsDER,
		signature:     signature,
		unsignedAttrs: req.UnsignedAttrs,
	}, nil
}

// BuildSignedData constructs a detached CMS SignedData ContentInfo (RFC 5652)
// over Content, signing the signedAttrs set (contentType, messageDigest,
// signingTime, signingCertificateV2) with req.Signer. This is the local
// counterpart to Parse/Verify: it exists so the sign package's one-shot
// SignData.Signer convenience path can produce real CMS without reaching for
// an external PKCS#7 library, while the spec's external-signing path
// (PrepareForExternalSigning/EmbedPKCS7) never calls this at all.
func BuildSignedData(req BuildRequest) ([]byte, error) {
	p, err := BuildPartialSignedData(req)
	if err != nil {
		return nil, err
	}
	return p.Finish()
}

func reverseDigestOID(hash crypto.Hash) (der.OID, bool) {
	switch hash {
	case crypto.SHA1:
		return sigalg.OIDSHA1, true
	case crypto.SHA256:
		return sigalg.OIDSHA256, true
	case crypto.SHA384:
		return sigalg.OIDSHA384, true
	case crypto.SHA512:
		return sigalg.OIDSHA512, true
	default:
		return nil, false
	}
}

func algorithmIdentifierDER(oid der.OID, withNull bool) []byte {
	bld := der.NewBuilder()
	bld.AddSequence(func(b *der.Builder) {
		b.AddOID(oid)
		if withNull {
			b.AddNull()
		}
	})
	out, _ := bld.Bytes()
	return out
}

func oidValueDER(oid der.OID) []byte {
	bld := der.NewBuilder()
	bld.AddOID(oid)
	raw, _ := bld.Bytes()
	return raw
}

func octetStringValueDER(v []byte) []byte {
	bld := der.NewBuilder()
	bld.AddOctetString(v)
	raw, _ := bld.Bytes()
	return raw
}

func generalizedTimeValueDER(t time.Time) []byte {
	if t.IsZero() {
		t = time.Now()
	}
	bld := der.NewBuilder()
	bld.AddGeneralizedTime(t)
	raw, _ := bld.Bytes()
	return raw
}

// signingCertificateV2Attribute builds the ESS signingCertificateV2 attribute
// (RFC 5035): SEQUENCE{ SEQUENCE OF ESSCertIDv2{ [hashAlgorithm], certHash } }.
func signingCertificateV2Attribute(cert *x509model.Certificate, hash crypto.Hash) (Attribute, error) {
	h := hash.New()
	h.Write(cert.Raw)
	certHash := h.Sum(nil)
	digestOID, ok := reverseDigestOID(hash)
	if !ok {
		return Attribute{}, fmt.Errorf("unsupported digest %v", hash)
	}

	bld := der.NewBuilder()
	bld.AddSequence(func(b *der.Builder) { // SigningCertificateV2
		b.AddSequence(func(b2 *der.Builder) { // certs SEQUENCE OF ESSCertIDv2
			b2.AddSequence(func(b3 *der.Builder) { // ESSCertIDv2
				if hash != crypto.SHA256 {
					b3.AddSequence(func(b4 *der.Builder) { b4.AddOID(digestOID) })
				}
				b3.AddOctetString(certHash)
			})
		})
	})
	raw, err := bld.Bytes()
	if err != nil {
		return Attribute{}, err
	}
	return attributeFromValueDER(OIDAttrSigningCertV2, raw)
}

func attributeFromValueDER(oid der.OID, valueDER []byte) (Attribute, error) {
	valuesSet := der.AddSetOfDER([][]byte{valueDER})
	bld := der.NewBuilder()
	bld.AddSequence(func(b *der.Builder) {
		b.AddOID(oid)
		b.AddRaw(valuesSet)
	})
	raw, err := bld.Bytes()
	return Attribute{Type: oid, Raw: raw}, err
}

// encodeSignedAttrs assembles the signed attribute SET in both DER forms
// RFC 5652 needs: the [0] IMPLICIT wire form stored in the SignerInfo, and
// the universal SET OF form whose bytes are what gets digested and signed.
func encodeSignedAttrs(attrs []Attribute) (implicitForm, universalForm []byte, err error) {
	elements := make([][]byte, len(attrs))
	for i, a := range attrs {
		elements[i] = a.Raw
	}
	universalForm = der.AddSetOfDER(elements)
	implicitForm = make([]byte, len(universalForm))
	copy(implicitForm, universalForm)
	implicitForm[0] = 0xA0 // retag SET (0x31) as [0] IMPLICIT
	return implicitForm, universalForm, nil
}

func buildSignerInfoDER(cert *x509model.Certificate, digestOID der.OID, signedAttrsImplicit []byte, sigAlgOID der.OID, signature []byte, unsignedAttrs []Attribute) ([]byte, error) {
	bld := der.NewBuilder()
	bld.AddSequence(func(b *der.Builder) {
		b.AddInt(1) // version (issuerAndSerialNumber form)
		b.AddSequence(func(sid *der.Builder) { // issuerAndSerialNumber
			sid.AddRaw(cert.Issuer.Raw)
			sid.AddBigInt(cert.SerialRaw)
		})
		b.AddRaw(algorithmIdentifierDER(digestOID, true))
		b.AddRaw(signedAttrsImplicit)
		b.AddRaw(algorithmIdentifierDER(sigAlgOID, isRSASignatureOID(sigAlgOID)))
		b.AddOctetString(signature)
		if len(unsignedAttrs) > 0 {
			elements := make([][]byte, len(unsignedAttrs))
			for i, a := range unsignedAttrs {
				elements[i] = a.Raw
			}
			set := der.AddSetOfDER(elements)
			set[0] = 0xA1 // retag SET (0x31) as [1] IMPLICIT
			b.AddRaw(set)
		}
	})
	return bld.Bytes()
}

func isRSASignatureOID(oid der.OID) bool {
	switch {
	case oid.Equal(sigalg.OIDSHA1WithRSA), oid.Equal(sigalg.OIDSHA256WithRSA),
		oid.Equal(sigalg.OIDSHA384WithRSA), oid.Equal(sigalg.OIDSHA512WithRSA):
		return true
	default:
		return false
	}
}
