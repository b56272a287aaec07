package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/digitorus/pdfsign/revocation"
	"github.com/digitorus/pdfsign/x509model"
)

// checkRevocationExternal performs OCSP-then-CRL external revocation
// checking for a certificate against its issuer, routed entirely through the
// caller-supplied revocation.Fetcher collaborator (spec section 5: HTTP I/O
// is deliberately outside the cryptographic core).
func checkRevocationExternal(ctx context.Context, cert, issuer *x509model.Certificate, fetcher revocation.Fetcher, skew time.Duration) (*revocation.Result, error) {
	var crlResult, ocspResult *revocation.Result

	for _, uri := range cert.Extensions.OCSPResponders() {
		reqDER, certID, err := revocation.BuildRequest(cert, issuer)
		if err != nil {
			continue
		}
		respDER, err := fetcher.FetchOCSP(ctx, uri, reqDER)
		if err != nil {
			continue
		}
		resp, err := revocation.ParseResponse(respDER)
		if err != nil || resp.Status != revocation.ResponseSuccessful || resp.Basic == nil {
			continue
		}
		single, ok := revocation.MatchSingleResponse(resp.Basic, certID)
		if !ok {
			continue
		}
		now := time.Now()
		if single.ThisUpdate.After(now.Add(skew)) {
			continue
		}
		if !single.NextUpdate.IsZero() && single.NextUpdate.Before(now.Add(-skew)) {
			continue
		}
		responder, ok := revocation.FindResponderCert(resp.Basic, []*x509model.Certificate{issuer})
		if !ok || !revocation.VerifyOCSPResponse(resp.Basic, responder) {
			continue
		}
		r := &revocation.Result{Status: single.Status, Source: revocation.SourceOCSP}
		ocspResult = r
		break
	}

	if dps, ok := cert.Extensions.CRLDistributionPoints(); ok {
	dpLoop:
		for _, dp := range dps {
			for _, uri := range dp.URIs {
				body, err := fetcher.FetchCRL(ctx, uri)
				if err != nil {
					continue
				}
				crl, err := x509model.ParseCRL(body)
				if err != nil {
					continue
				}
				res, err := revocation.CheckCRL(crl, issuer, cert.SerialRaw, time.Now())
				if err != nil {
					continue
				}
				crlResult = &res
				break dpLoop
			}
		}
	}

	merged := revocation.Combine(crlResult, ocspResult)
	if merged.Source == revocation.SourceNone {
		return nil, fmt.Errorf("verify: no usable revocation evidence")
	}
	return &merged, nil
}
