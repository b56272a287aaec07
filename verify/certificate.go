package verify

import (
	"fmt"
	"time"

	"github.com/digitorus/pdfsign/revocation"
	"github.com/digitorus/pdfsign/x509model"
)

// checkCertificateRevocation classifies the revocation status of cert
// (issued by issuer) using embedded CRL/OCSP evidence first, falling back to
// an external fetch when allowed, per spec section 4.7/4.10 step 6.
func checkCertificateRevocation(cert, issuer *x509model.Certificate, revInfo revocation.InfoArchival, opts VerifyOptions, checkTime time.Time) revocation.Result {
	var crlResult, ocspResult *revocation.Result

	for _, raw := range revInfo.CRL {
		crl, err := x509model.ParseCRL(raw)
		if err != nil {
			continue
		}
		if !issuer.Subject.Equal(crl.Issuer) {
			continue
		}
		res, err := revocation.CheckCRL(crl, issuer, cert.SerialRaw, checkTime)
		if err != nil {
			continue
		}
		crlResult = &res
		break
	}

	var basics []*revocation.BasicOCSPResponse
	for _, raw := range revInfo.OCSP {
		if resp, err := revocation.ParseResponse(raw); err == nil && resp.Status == revocation.ResponseSuccessful && resp.Basic != nil {
			basics = append(basics, resp.Basic)
		}
	}
	for _, raw := range revInfo.Other {
		// CAdES revocation-values embeds ocspVals as bare BasicOCSPResponse,
		// without the OCSPResponse envelope.
		if basic, err := revocation.ParseBasicOCSPResponse(raw); err == nil {
			basics = append(basics, basic)
		}
	}

	for _, basic := range basics {
		for _, single := range basic.Responses {
			if single.CertID.SerialNumber == nil || cert.SerialRaw == nil || single.CertID.SerialNumber.Cmp(cert.SerialRaw) != 0 {
				continue
			}
			responder, ok := revocation.FindResponderCert(basic, []*x509model.Certificate{issuer})
			if !ok || !revocation.VerifyOCSPResponse(basic, responder) {
				continue
			}
			r := revocation.Result{Status: single.Status, Source: revocation.SourceOCSP}
			if single.RevokedAt != nil {
				r.RevokedAt = single.RevokedAt
			}
			ocspResult = &r
			break
		}
	}

	if crlResult == nil && ocspResult == nil && opts.EnableExternalRevocationCheck && opts.Fetcher != nil {
		if r, err := checkRevocationExternal(opts.ctx(), cert, issuer, opts.Fetcher, opts.skew()); err == nil {
			return *r
		}
	}

	return revocation.Combine(crlResult, ocspResult)
}

// buildSignerChainAndRevocation builds the trust chain for the signer
// certificate and classifies revocation for every certificate in it, per
// spec section 4.10 steps 5-6.
func buildSignerChainAndRevocation(signer *x509model.Certificate, embedded []*x509model.Certificate, revInfo revocation.InfoArchival, opts VerifyOptions, checkTime time.Time) (Chain, revocation.Result, []Issue) {
	var issues []Issue

	chain, err := BuildChain(signer, embedded, nil, opts.TrustRoots, checkTime)
	if err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Code: CodeIssuerNotFound, Message: err.Error()})
	}
	if !chain.Trusted && !opts.AllowUntrustedRoots {
		issues = append(issues, Issue{Severity: SeverityWarning, Code: CodeIssuerNotFound, Message: "chain did not reach a trust anchor"})
	}

	result := revocation.Result{Status: revocation.StatusUnknown, Source: revocation.SourceNone}
	if len(chain.Certs) >= 2 {
		result = checkCertificateRevocation(chain.Certs[0], chain.Certs[1], revInfo, opts, checkTime)
	}

	switch result.Status {
	case revocation.StatusRevoked:
		issues = append(issues, Issue{Severity: SeverityError, Code: CodeRevocationRevoked, Message: fmt.Sprintf("signer certificate revoked (source=%s)", result.Source)})
	case revocation.StatusUnknown:
		sev := SeverityWarning
		if opts.Strict {
			sev = SeverityError
		}
		issues = append(issues, Issue{Severity: sev, Code: CodeRevocationUnknown, Message: "revocation status could not be determined"})
	}

	return chain, result, issues
}
