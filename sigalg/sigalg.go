// Package sigalg dispatches a DER-decoded AlgorithmIdentifier to the stdlib
// crypto primitive it names and verifies a signature against it.
//
// This is the one layer of the cryptographic core that deliberately stays on
// the standard library: there is no third-party replacement in the retrieval
// pack for crypto/rsa, crypto/ecdsa or the digest packages, and the spec
// itself frames C3 as "apply stdlib crypto given an OID", not a parsing
// concern (see SPEC_FULL.md section 3 / DESIGN.md).
package sigalg

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/x509model"
)

// Well-known signature algorithm OIDs, per spec section 4.3.
var (
	OIDRSAEncryption      = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 1)
	OIDSHA1WithRSA        = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 5)
	OIDSHA256WithRSA      = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 11)
	OIDSHA384WithRSA      = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 12)
	OIDSHA512WithRSA      = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 13)
	OIDRSASSAPSS          = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 10)
	OIDMGF1               = der.OIDFromInts(1, 2, 840, 113549, 1, 1, 8)

	OIDECDSAWithSHA1   = der.OIDFromInts(1, 2, 840, 10045, 4, 1)
	OIDECDSAWithSHA224 = der.OIDFromInts(1, 2, 840, 10045, 4, 3, 1)
	OIDECDSAWithSHA256 = der.OIDFromInts(1, 2, 840, 10045, 4, 3, 2)
	OIDECDSAWithSHA384 = der.OIDFromInts(1, 2, 840, 10045, 4, 3, 3)
	OIDECDSAWithSHA512 = der.OIDFromInts(1, 2, 840, 10045, 4, 3, 4)

	OIDSHA1   = der.OIDFromInts(1, 3, 14, 3, 2, 26)
	OIDSHA224 = der.OIDFromInts(2, 16, 840, 1, 101, 3, 4, 2, 4)
	OIDSHA256 = der.OIDFromInts(2, 16, 840, 1, 101, 3, 4, 2, 1)
	OIDSHA384 = der.OIDFromInts(2, 16, 840, 1, 101, 3, 4, 2, 2)
	OIDSHA512 = der.OIDFromInts(2, 16, 840, 1, 101, 3, 4, 2, 3)

	// Named EC curve OIDs (ANSI X9.62 / SEC1), per spec's curve list.
	OIDCurveP256      = der.OIDFromInts(1, 2, 840, 10045, 3, 1, 7) // prime256v1
	OIDCurveP384      = der.OIDFromInts(1, 3, 132, 0, 34)          // secp384r1
	OIDCurveP521      = der.OIDFromInts(1, 3, 132, 0, 35)          // secp521r1
	OIDCurveSecp256k1 = der.OIDFromInts(1, 3, 132, 0, 10)          // secp256k1
)

func digestOID(oid der.OID) (crypto.Hash, bool) {
	switch {
	case oid.Equal(OIDSHA1):
		return crypto.SHA1, true
	case oid.Equal(OIDSHA224):
		return crypto.SHA224, true
	case oid.Equal(OIDSHA256):
		return crypto.SHA256, true
	case oid.Equal(OIDSHA384):
		return crypto.SHA384, true
	case oid.Equal(OIDSHA512):
		return crypto.SHA512, true
	default:
		return 0, false
	}
}

func hashDigest(h crypto.Hash, data []byte) []byte {
	switch h {
	case crypto.SHA1:
		d := sha1.Sum(data)
		return d[:]
	case crypto.SHA224:
		d := sha256.Sum224(data)
		return d[:]
	case crypto.SHA256:
		d := sha256.Sum256(data)
		return d[:]
	case crypto.SHA384:
		d := sha512.Sum384(data)
		return d[:]
	case crypto.SHA512:
		d := sha512.Sum512(data)
		return d[:]
	default:
		return nil
	}
}

// Verify checks signature over signedBytes (the message, not its digest)
// using the public key described by spki and the algorithm identifier alg.
// Per spec section 4.3: "Any parsing failure, algorithm not in the
// allow-list, or key type mismatch returns false; never an exception to the
// caller" — Verify never panics and never returns an error, only a bool.
func Verify(alg x509model.AlgorithmIdentifier, spki x509model.SubjectPublicKeyInfo, signedBytes, signature []byte) bool {
	defer func() { recover() }() //nolint:errcheck // last-resort guard per spec's "never an exception" contract

	switch {
	case alg.Algorithm.Equal(OIDSHA1WithRSA):
		return verifyRSAPKCS1(spki, crypto.SHA1, signedBytes, signature)
	case alg.Algorithm.Equal(OIDSHA256WithRSA):
		return verifyRSAPKCS1(spki, crypto.SHA256, signedBytes, signature)
	case alg.Algorithm.Equal(OIDSHA384WithRSA):
		return verifyRSAPKCS1(spki, crypto.SHA384, signedBytes, signature)
	case alg.Algorithm.Equal(OIDSHA512WithRSA):
		return verifyRSAPKCS1(spki, crypto.SHA512, signedBytes, signature)
	case alg.Algorithm.Equal(OIDRSASSAPSS):
		return verifyRSAPSS(alg, spki, signedBytes, signature)
	case alg.Algorithm.Equal(OIDECDSAWithSHA1):
		return verifyECDSA(spki, crypto.SHA1, signedBytes, signature)
	case alg.Algorithm.Equal(OIDECDSAWithSHA224):
		return verifyECDSA(spki, crypto.SHA224, signedBytes, signature)
	case alg.Algorithm.Equal(OIDECDSAWithSHA256):
		return verifyECDSA(spki, crypto.SHA256, signedBytes, signature)
	case alg.Algorithm.Equal(OIDECDSAWithSHA384):
		return verifyECDSA(spki, crypto.SHA384, signedBytes, signature)
	case alg.Algorithm.Equal(OIDECDSAWithSHA512):
		return verifyECDSA(spki, crypto.SHA512, signedBytes, signature)
	default:
		return false
	}
}

func rsaPublicKey(spki x509model.SubjectPublicKeyInfo) (*rsa.PublicKey, bool) {
	if !spki.Algorithm.Algorithm.Equal(OIDRSAEncryption) {
		return nil, false
	}
	v, err := der.Decode(spki.KeyBytes)
	if err != nil {
		return nil, false
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, false
	}
	nVal, err := seq.Next()
	if err != nil {
		return nil, false
	}
	n, err := nVal.BigInt()
	if err != nil {
		return nil, false
	}
	eVal, err := seq.Next()
	if err != nil {
		return nil, false
	}
	e, err := eVal.BigInt()
	if err != nil {
		return nil, false
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, true
}

func verifyRSAPKCS1(spki x509model.SubjectPublicKeyInfo, hash crypto.Hash, signedBytes, signature []byte) bool {
	pub, ok := rsaPublicKey(spki)
	if !ok {
		return false
	}
	digest := hashDigest(hash, signedBytes)
	return rsa.VerifyPKCS1v15(pub, hash, digest, signature) == nil
}

// pssParams is the RSASSA-PSS-params SEQUENCE (RFC 4055 section 3.1), with
// RFC 4055 section 3.1's defaults applied when fields are absent:
// hashAlgorithm=sha1, maskGenAlgorithm=mgf1SHA1, saltLength=20, trailerField=1.
type pssParams struct {
	Hash       crypto.Hash
	MGFHash    crypto.Hash
	SaltLength int
}

func defaultPSSParams() pssParams {
	return pssParams{Hash: crypto.SHA1, MGFHash: crypto.SHA1, SaltLength: 20}
}

func parsePSSParams(raw []byte) pssParams {
	params := defaultPSSParams()
	if len(raw) == 0 {
		return params
	}
	v, err := der.Decode(raw)
	if err != nil {
		return params
	}
	seq, err := v.Sequence()
	if err != nil {
		return params
	}
	for !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			return params
		}
		switch {
		case el.IsContextTag(0): // [0] hashAlgorithm
			inner, err := el.Explicit(0)
			if err != nil {
				continue
			}
			alg, err := algFromValue(inner)
			if err != nil {
				continue
			}
			if h, ok := digestOID(alg.Algorithm); ok {
				params.Hash = h
			}
		case el.IsContextTag(1): // [1] maskGenAlgorithm
			inner, err := el.Explicit(1)
			if err != nil {
				continue
			}
			mgfAlg, err := algFromValue(inner)
			if err != nil {
				continue
			}
			if len(mgfAlg.Params) > 0 {
				hv, err := der.Decode(mgfAlg.Params)
				if err == nil {
					hashAlg, err := algFromValue(hv)
					if err == nil {
						if h, ok := digestOID(hashAlg.Algorithm); ok {
							params.MGFHash = h
						}
					}
				}
			}
		case el.IsContextTag(2): // [2] saltLength
			inner, err := el.Explicit(2)
			if err != nil {
				continue
			}
			n, err := inner.Int()
			if err == nil {
				params.SaltLength = int(n)
			}
		}
	}
	return params
}

func algFromValue(v der.Value) (x509model.AlgorithmIdentifier, error) {
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

func verifyRSAPSS(alg x509model.AlgorithmIdentifier, spki x509model.SubjectPublicKeyInfo, signedBytes, signature []byte) bool {
	pub, ok := rsaPublicKey(spki)
	if !ok {
		return false
	}
	params := parsePSSParams(alg.Params)
	digest := hashDigest(params.Hash, signedBytes)
	opts := &rsa.PSSOptions{SaltLength: params.SaltLength, Hash: params.MGFHash}
	return rsa.VerifyPSS(pub, params.Hash, digest, signature, opts) == nil
}

func ecdsaPublicKey(spki x509model.SubjectPublicKeyInfo) (*ecdsa.PublicKey, bool) {
	curve, ok := ecdsaCurve(spki.Algorithm)
	if !ok {
		return nil, false
	}
	x, y := elliptic.Unmarshal(curve, spki.KeyBytes)
	if x == nil {
		return nil, false
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, true
}

func ecdsaCurve(alg x509model.AlgorithmIdentifier) (elliptic.Curve, bool) {
	if len(alg.Params) == 0 {
		return nil, false
	}
	v, err := der.Decode(alg.Params)
	if err != nil {
		return nil, false
	}
	oid, err := v.OID()
	if err != nil {
		return nil, false
	}
	switch {
	case oid.Equal(OIDCurveP256):
		return elliptic.P256(), true
	case oid.Equal(OIDCurveP384):
		return elliptic.P384(), true
	case oid.Equal(OIDCurveP521):
		return elliptic.P521(), true
	case oid.Equal(OIDCurveSecp256k1):
		return secp256k1.S256(), true
	default:
		return nil, false
	}
}

// ecdsaSignature is the DER SEQUENCE{r,s} required by spec section 4.3.
type ecdsaSignature struct {
	R, S *big.Int
}

func parseECDSASignature(sig []byte) (ecdsaSignature, bool) {
	input := cryptobyte.String(sig)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) || !input.Empty() {
		return ecdsaSignature{}, false
	}
	r, s := new(big.Int), new(big.Int)
	if !inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return ecdsaSignature{}, false
	}
	return ecdsaSignature{R: r, S: s}, true
}

func verifyECDSA(spki x509model.SubjectPublicKeyInfo, hash crypto.Hash, signedBytes, signature []byte) bool {
	pub, ok := ecdsaPublicKey(spki)
	if !ok {
		return false
	}
	sig, ok := parseECDSASignature(signature)
	if !ok {
		return false
	}
	digest := hashDigest(hash, signedBytes)
	return ecdsa.Verify(pub, digest, sig.R, sig.S)
}

// KeyBits reports the modulus/curve bit length of an RSA or ECDSA public key,
// for the policy engine's AlgAndLength minimum-key-length checks.
func KeyBits(spki x509model.SubjectPublicKeyInfo) (int, bool) {
	if pub, ok := rsaPublicKey(spki); ok {
		return pub.N.BitLen(), true
	}
	if pub, ok := ecdsaPublicKey(spki); ok {
		return pub.Curve.Params().BitSize, true
	}
	return 0, false
}

// DigestOID reports whether oid names one of the supported message-digest
// algorithms, returning the corresponding crypto.Hash.
func DigestOID(oid der.OID) (crypto.Hash, bool) { return digestOID(oid) }

// idECPublicKey is the SPKI algorithm OID for EC public keys (RFC 5480),
// distinct from the signature algorithm OIDs above.
var idECPublicKey = der.OIDFromInts(1, 2, 840, 10045, 2, 1)

// PickSignatureAlgorithm picks the signatureAlgorithm AlgorithmIdentifier a
// CMS builder should declare for a SignerInfo over spki, given the digest
// algorithm it signs with. This is Verify's dispatch table read in reverse:
// the embedder (C6) needs to name the same OID family that Verify (C3) will
// later look up.
func PickSignatureAlgorithm(spki x509model.SubjectPublicKeyInfo, hash crypto.Hash) (der.OID, error) {
	switch {
	case spki.Algorithm.Algorithm.Equal(OIDRSAEncryption):
		switch hash {
		case crypto.SHA1:
			return OIDSHA1WithRSA, nil
		case crypto.SHA256:
			return OIDSHA256WithRSA, nil
		case crypto.SHA384:
			return OIDSHA384WithRSA, nil
		case crypto.SHA512:
			return OIDSHA512WithRSA, nil
		default:
			return nil, fmt.Errorf("sigalg: unsupported RSA digest %v", hash)
		}
	case spki.Algorithm.Algorithm.Equal(idECPublicKey):
		switch hash {
		case crypto.SHA1:
			return OIDECDSAWithSHA1, nil
		case crypto.SHA256:
			return OIDECDSAWithSHA256, nil
		case crypto.SHA384:
			return OIDECDSAWithSHA384, nil
		case crypto.SHA512:
			return OIDECDSAWithSHA512, nil
		default:
			return nil, fmt.Errorf("sigalg: unsupported ECDSA digest %v", hash)
		}
	default:
		return nil, fmt.Errorf("sigalg: unsupported public key algorithm %s", spki.Algorithm.Algorithm)
	}
}

// Digest computes the message digest named by oid over data, returning an
// error rather than a bool since callers (CMS message-digest comparison) need
// to distinguish "unsupported algorithm" from "digest mismatch".
func Digest(oid der.OID, data []byte) ([]byte, error) {
	h, ok := digestOID(oid)
	if !ok {
		return nil, fmt.Errorf("sigalg: unsupported digest algorithm %s", oid)
	}
	return hashDigest(h, data), nil
}
