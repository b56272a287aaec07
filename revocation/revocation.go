// Package revocation implements the CRL and OCSP side of the revocation
// engine (spec component C7): verifying a CRL's own signature and walking its
// revoked-serials set, and building/parsing OCSP requests/responses,
// including responder-certificate matching.
//
// It is also the archival container the signer embeds CRL/OCSP responses
// into as an unsigned CMS attribute (id-aa-ets-RevocationRefs's sibling,
// id-aa-ets-revocationValues), matching the teacher's InfoArchival shape.
package revocation

import (
	"fmt"
	"math/big"
	"time"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/sigalg"
	"github.com/digitorus/pdfsign/x509model"
)

// InfoArchival is the revocation-information container embedded alongside a
// PDF signature (CRLs, OCSP responses, and any other revocation evidence, as
// their raw DER). Kept from the teacher's shape so sign/revocation.go's
// embedding call sites stay structurally the same; Other now stores
// DER-canonical attribute encodings instead of a single untyped ASN.1
// SEQUENCE.
type InfoArchival struct {
	CRL   [][]byte
	OCSP  [][]byte
	Other [][]byte
}

// AddCRL embeds the raw DER of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, b)
	return nil
}

// AddOCSP embeds the raw DER of a downloaded OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, b)
	return nil
}

// Status is the classification the spec requires for CRL and OCSP alike.
type Status int

const (
	StatusUnknown Status = iota
	StatusGood
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Source names where a revocation determination came from, matching the
// ValidationReport.revocation.source field from spec section 3.
type Source string

const (
	SourceNone  Source = "none"
	SourceCRL   Source = "crl"
	SourceOCSP  Source = "ocsp"
	SourceMixed Source = "mixed"
)

// Result is the per-certificate revocation determination the orchestrator
// (C10) reports.
type Result struct {
	Status         Status
	Source         Source
	RevokedAt      *time.Time
	Evidence       string // human-readable: which CRL/OCSP responder resolved this
}

// CheckCRL verifies crl's own signature against issuer, checks thisUpdate/
// nextUpdate validity at checkTime, and reports whether serial appears in its
// revoked set. Per spec section 4.4's "CRL: verify signature, check
// thisUpdate/nextUpdate, search serial."
func CheckCRL(crl *x509model.CrlFile, issuer *x509model.Certificate, serial *big.Int, checkTime time.Time) (Result, error) {
	if !issuer.Subject.Equal(crl.Issuer) {
		return Result{}, fmt.Errorf("revocation: CRL issuer does not match certificate issuer")
	}
	if !sigalg.Verify(crl.SigAlg, issuer.SPKI, crl.TBSDer, crl.SigBits.RightAlign()) {
		return Result{}, fmt.Errorf("revocation: CRL signature does not verify against issuer")
	}
	if !crl.ValidAt(checkTime) {
		return Result{}, fmt.Errorf("revocation: CRL is not valid at %s (thisUpdate=%s)", checkTime, crl.ThisUpdate)
	}
	if rc, found := crl.Find(serial); found {
		t := rc.RevocationDate
		return Result{Status: StatusRevoked, Source: SourceCRL, RevokedAt: &t, Evidence: "crl:" + crl.Issuer.String()}, nil
	}
	return Result{Status: StatusGood, Source: SourceCRL, Evidence: "crl:" + crl.Issuer.String()}, nil
}
