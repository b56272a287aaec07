package verify

import (
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/digitorus/pdfsign/cms"
	"github.com/digitorus/pdfsign/policy"
	"github.com/digitorus/pdfsign/revocation"
	"github.com/digitorus/pdfsign/sigalg"
	"github.com/digitorus/pdfsign/x509model"
)

// verifySlot runs the full per-signature validation pipeline (spec section
// 4.10 steps 2-9) for one located signature slot.
func verifySlot(data []byte, slot SignatureSlot, opts VerifyOptions) ValidationReport {
	report := ValidationReport{FieldName: slot.FieldName}
	report.CoversCurrentFile = slot.ByteRange[2]+slot.ByteRange[3] == int64(len(data))

	cmsDER, err := decodeContentsHex(data[slot.ContentsStart:slot.ContentsEnd])
	if err != nil {
		report.addIssue(SeverityError, CodeCMSSignatureInvalid, fmt.Sprintf("malformed /Contents: %v", err))
		return report
	}

	sd, err := cms.Parse(cmsDER)
	if err != nil {
		report.addIssue(SeverityError, CodeCMSSignatureInvalid, fmt.Sprintf("failed to parse CMS SignedData: %v", err))
		return report
	}

	byteRangeContent := readByteRange(data, slot.ByteRange)

	if sd.ContentType.Equal(cms.OIDTSTInfo) {
		verifyDocTimeStamp(&report, sd, byteRangeContent, opts)
		report.DocumentIntact = report.CoversCurrentFile && report.ByteRangeDigestOK && report.CMSValid
		return report
	}

	if len(sd.SignerInfos) == 0 {
		report.addIssue(SeverityError, CodeCMSSignerNotFound, "CMS SignedData carries no SignerInfo")
		return report
	}
	si := sd.SignerInfos[0]

	signer, ok := sd.FindSigner(si)
	if !ok {
		report.addIssue(SeverityError, CodeCMSSignerNotFound, "no certificate matches SignerInfo sid")
		return report
	}

	results := cms.Verify(sd, byteRangeContent)
	res := results[0]
	report.CMSValid = res.SignatureOK
	report.ByteRangeDigestOK = res.Err == nil
	if ve, ok := res.Err.(*cms.VerifyError); ok {
		if ve.Code == cms.IssueSignatureInvalid {
			// digest matched; only the signature itself failed
			report.ByteRangeDigestOK = true
		}
		sev := SeverityError
		report.addIssue(sev, ve.Code, ve.Message)
	}

	signingTime, hasSigningTime := si.SigningTime()
	report.SigningTime = signingTime
	checkTime := opts.Time
	if checkTime.IsZero() {
		if hasSigningTime {
			checkTime = signingTime
		} else {
			checkTime = time.Now()
		}
	}

	revInfo := extractRevocationInfo(sd, si)
	chain, revResult, chainIssues := buildSignerChainAndRevocation(signer, sd.Certificates, revInfo, opts, checkTime)
	report.Chain = chain.Certs
	report.ChainTrusted = chain.Trusted
	report.Revocation = RevocationStatus{Status: revResult.Status, Source: revResult.Source}
	report.Issues = append(report.Issues, chainIssues...)
	if len(chainIssues) > 0 {
		report.ChainError = chainIssues[0].Message
	}
	opts.log().Debug("signer chain built",
		zap.String("field", slot.FieldName),
		zap.Int("chain_length", len(chain.Certs)),
		zap.Bool("chain_trusted", chain.Trusted),
		zap.Int("revocation_status", int(revResult.Status)))

	var issuerCert *x509model.Certificate
	if len(chain.Certs) >= 2 {
		issuerCert = chain.Certs[1]
	}
	report.Signer = buildSignerIdentity(signer, issuerCert)

	if kuValid, kuErr, ekuValid, ekuErr := validateKeyUsage(signer); !kuValid || !ekuValid {
		if !kuValid {
			report.addIssue(SeverityWarning, CodeKeyUsageInvalid, kuErr)
		}
		if !ekuValid {
			report.addIssue(SeverityWarning, CodeExtKeyUsageInvalid, ekuErr)
		}
	}

	tokenDER, hasTimestamp := si.TimestampToken()
	report.TimestampStatus = evaluateTimestamp(&report, tokenDER, hasTimestamp, res, si)

	if opts.LPA != nil {
		claim, _ := parseSignaturePolicyClaim(si)
		var etsi *policy.ETSIConstraints
		if opts.PolicyXMLByOID != nil {
			etsi = opts.PolicyXMLByOID[claim.PolicyOID]
		}
		keyBits, _ := sigalg.KeyBits(signer.SPKI)
		match := policy.MatchPolicy(opts.LPA, claim, signingTime, opts.Strict, etsi,
			report.TimestampStatus.Present && report.TimestampStatus.Valid,
			si.SignatureAlgorithm.Algorithm.String(), si.DigestAlgorithm.Algorithm.String(), keyBits)
		report.PolicyStatus = &match
		for _, issue := range match.Issues {
			sev := SeverityWarning
			if issue.Severity == policy.SeverityError {
				sev = SeverityError
			}
			report.addIssue(sev, issue.Code, issue.Message)
		}
	}

	report.DocMDP = findDocMDP(data, slot)

	report.DocumentIntact = report.CoversCurrentFile && report.ByteRangeDigestOK && report.CMSValid
	return report
}

// verifyDocTimeStamp handles a pure DocTimeStamp signature field (SubFilter
// ETSI.RFC3161): the CMS content IS a TSTInfo whose MessageImprint digests
// the PDF's ByteRange gap directly, rather than a signed-attrs message
// digest, per spec section 4.4's recursive timestamp rule applied at the top
// level instead of nested under an outer SignerInfo.
func verifyDocTimeStamp(report *ValidationReport, sd *cms.SignedData, byteRangeContent []byte, opts VerifyOptions) {
	tst, err := cms.ParseTSTInfo(sd.EContent)
	if err != nil {
		report.addIssue(SeverityError, CodeTimestampInvalid, fmt.Sprintf("failed to parse TSTInfo: %v", err))
		return
	}
	digest, err := sigalg.Digest(tst.MessageImprint.HashAlgorithm, byteRangeContent)
	if err != nil {
		report.addIssue(SeverityError, CodeTimestampInvalid, fmt.Sprintf("unsupported messageImprint digest: %v", err))
		return
	}
	report.ByteRangeDigestOK = string(digest) == string(tst.MessageImprint.HashedMessage)
	if !report.ByteRangeDigestOK {
		report.addIssue(SeverityError, CodeTimestampImprintMismatch, "messageImprint does not match ByteRange digest")
	}

	results := cms.Verify(sd, nil)
	report.CMSValid = len(results) > 0 && results[0].SignatureOK
	if len(results) > 0 && results[0].Err != nil {
		report.addIssue(SeverityError, CodeCMSSignatureInvalid, results[0].Err.Error())
	}

	report.TimestampStatus = TimestampStatus{Present: true, Valid: report.CMSValid && report.ByteRangeDigestOK, Time: tst.GenTime}
	report.SigningTime = tst.GenTime

	if len(results) > 0 && results[0].Signer != nil {
		chain, _, chainIssues := buildSignerChainAndRevocation(results[0].Signer, sd.Certificates, revInfoFor(sd), opts, tst.GenTime)
		report.Chain = chain.Certs
		report.ChainTrusted = chain.Trusted
		report.Issues = append(report.Issues, chainIssues...)
		report.Signer = buildSignerIdentity(results[0].Signer, chainIssuer(chain))
	}
}

func chainIssuer(c Chain) *x509model.Certificate {
	if len(c.Certs) >= 2 {
		return c.Certs[1]
	}
	return nil
}

func revInfoFor(sd *cms.SignedData) revocation.InfoArchival {
	var info revocation.InfoArchival
	for _, crl := range sd.CRLs {
		info.CRL = append(info.CRL, crl.Raw)
	}
	return info
}

// evaluateTimestamp validates an embedded RFC 3161 signature-time-stamp
// unsigned attribute per spec section 4.4/4.10 step 8: it recursively
// verifies the token's own CMS signature and checks that its MessageImprint
// digests the outer SignerInfo's signature value.
func evaluateTimestamp(report *ValidationReport, tokenDER []byte, present bool, outer cms.SignerResult, si cms.SignerInfo) TimestampStatus {
	if !present {
		return TimestampStatus{}
	}
	tst, results, err := cms.VerifyTimestampToken(tokenDER, si.Signature)
	if err != nil {
		report.addIssue(SeverityError, CodeTimestampInvalid, err.Error())
		return TimestampStatus{Present: true}
	}
	valid := len(results) > 0 && results[0].SignatureOK
	if !valid {
		report.addIssue(SeverityError, CodeTimestampInvalid, "timestamp token CMS signature does not verify")
	}
	return TimestampStatus{Present: true, Valid: valid, Time: tst.GenTime}
}

// decodeContentsHex decodes the /Contents hex string, trimming the NUL/'0'
// padding used to fill a reserved placeholder, per spec section 4.5. The
// padding can take two forms: literal NUL bytes appended after the hex text
// ends (not valid hex digits, so they must come off before decoding), and
// trailing ASCII '0' characters that are themselves valid hex digits and so
// decode into trailing 0x00 bytes after the real DER (those come off the
// decoded bytes, not the hex text).
func decodeContentsHex(raw []byte) ([]byte, error) {
	hexText := raw
	for len(hexText) > 0 && hexText[len(hexText)-1] == 0 {
		hexText = hexText[:len(hexText)-1]
	}
	if len(hexText)%2 != 0 {
		hexText = hexText[:len(hexText)-1]
	}
	decoded, err := hex.DecodeString(string(hexText))
	if err != nil {
		return nil, err
	}
	end := len(decoded)
	for end > 0 && decoded[end-1] == 0 {
		end--
	}
	return decoded[:end], nil
}

// readByteRange concatenates the two byte spans ByteRange names, per spec
// section 4.5's gap layout.
func readByteRange(data []byte, br [4]int64) []byte {
	out := make([]byte, 0, br[1]+br[3])
	out = append(out, data[br[0]:br[0]+br[1]]...)
	out = append(out, data[br[2]:br[2]+br[3]]...)
	return out
}
