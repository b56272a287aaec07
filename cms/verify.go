package cms

import (
	"fmt"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/sigalg"
	"github.com/digitorus/pdfsign/x509model"
)

// Issue codes named in spec section 4.4.
const (
	IssueNoMessageDigest = "cms_no_message_digest"
	IssueDigestMismatch  = "cms_digest_mismatch"
	IssueSignerNotFound  = "cms_signer_not_found"
	IssueSignatureInvalid = "cms_signature_invalid"
)

// VerifyError carries one of the structured issue codes above.
type VerifyError struct {
	Code    string
	Message string
}

func (e *VerifyError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func issue(code, format string, args ...any) *VerifyError {
	return &VerifyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// SignerResult is the outcome of verifying one SignerInfo.
type SignerResult struct {
	Signer       *x509model.Certificate
	SignatureOK  bool
	Err          error
}

// Verify verifies every SignerInfo in sd against externalContent (the
// detached content bytes; pass nil when sd.EContent is attached), following
// spec section 4.4 steps 1-4.
func Verify(sd *SignedData, externalContent []byte) []SignerResult {
	content := sd.EContent
	if content == nil {
		content = externalContent
	}
	results := make([]SignerResult, 0, len(sd.SignerInfos))
	for _, si := range sd.SignerInfos {
		results = append(results, verifyOne(sd, si, content))
	}
	return results
}

func verifyOne(sd *SignedData, si SignerInfo, content []byte) SignerResult {
	cert, ok := sd.FindSigner(si)
	if !ok {
		return SignerResult{Err: issue(IssueSignerNotFound, "no certificate matches signerInfo sid")}
	}
	res := SignerResult{Signer: cert}

	if si.HasSignedAttrs() {
		if _, ok := si.ContentType(); !ok {
			res.Err = issue(IssueNoMessageDigest, "missing content-type signed attribute")
			return res
		}
		msgDigest, ok := si.MessageDigest()
		if !ok {
			res.Err = issue(IssueNoMessageDigest, "missing message-digest signed attribute")
			return res
		}
		expected, err := sigalg.Digest(si.DigestAlgorithm.Algorithm, content)
		if err != nil {
			res.Err = issue(IssueDigestMismatch, "unsupported digest algorithm: %v", err)
			return res
		}
		if string(expected) != string(msgDigest) {
			res.Err = issue(IssueDigestMismatch, "message-digest attribute does not match content digest")
			return res
		}

		// Per spec section 4.4(b): the bytes to hash for signature
		// verification are the signed-attrs SET re-encoded with outer tag
		// SET OF (0x31), not the IMPLICIT [0] form carried in the DER.
		signedBytes := der.ReTagSetOf(si.SignedAttrsRaw)
		res.SignatureOK = sigalg.Verify(si.SignatureAlgorithm, cert.SPKI, signedBytes, si.Signature)
	} else {
		res.SignatureOK = sigalg.Verify(si.SignatureAlgorithm, cert.SPKI, content, si.Signature)
	}

	if !res.SignatureOK {
		res.Err = issue(IssueSignatureInvalid, "signature does not verify against signer's public key")
	}
	return res
}

// VerifyTimestampToken parses the raw RFC 3161 token (itself a CMS
// ContentInfo/SignedData whose eContentType is TSTInfo) and checks:
//  1. The token's own CMS signature verifies (recursing into Verify).
//  2. TSTInfo.MessageImprint digests outerSignature (spec section 4.4: "its
//     value is an RFC 3161 TSTInfo... validate by... checking that
//     TSTInfo.messageImprint digests the outer SignerInfo's signature
//     value").
func VerifyTimestampToken(tokenDER []byte, outerSignature []byte) (*TSTInfo, []SignerResult, error) {
	sd, err := Parse(tokenDER)
	if err != nil {
		return nil, nil, fmt.Errorf("timestamp token: %w", err)
	}
	if !sd.ContentType.Equal(OIDTSTInfo) {
		return nil, nil, fmt.Errorf("timestamp token: unexpected eContentType %s", sd.ContentType)
	}
	tst, err := ParseTSTInfo(sd.EContent)
	if err != nil {
		return nil, nil, fmt.Errorf("timestamp token: %w", err)
	}
	digest, err := sigalg.Digest(tst.MessageImprint.HashAlgorithm, outerSignature)
	if err != nil {
		return tst, nil, fmt.Errorf("timestamp token: %w", err)
	}
	if string(digest) != string(tst.MessageImprint.HashedMessage) {
		return tst, nil, fmt.Errorf("timestamp token: messageImprint does not match signature value")
	}
	results := Verify(sd, nil)
	return tst, results, nil
}
