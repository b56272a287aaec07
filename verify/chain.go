package verify

import (
	"fmt"
	"time"

	"github.com/digitorus/pdfsign/revocation"
	"github.com/digitorus/pdfsign/sigalg"
	"github.com/digitorus/pdfsign/x509model"
)

// Chain is the ordered certificate path from a signer to a trust anchor,
// signer first, per spec section 4.8.
type Chain struct {
	Certs   []*x509model.Certificate
	Trusted bool
}

// BuildChain walks from signer to a trust anchor via AKI/SKI links first,
// falling back to DN equality, among the certificates embedded in the CMS
// plus any extra candidates and the trust roots supplied by a
// TrustRootsProvider. It enforces the validity window of every link at
// checkTime and detects cycles, per spec section 4.8.
func BuildChain(signer *x509model.Certificate, embedded, extra []*x509model.Certificate, roots revocation.TrustRootsProvider, checkTime time.Time) (Chain, error) {
	pool := make([]*x509model.Certificate, 0, len(embedded)+len(extra))
	pool = append(pool, embedded...)
	pool = append(pool, extra...)

	var trustRoots []*x509model.Certificate
	if roots != nil {
		trustRoots = roots.TrustRoots()
	}

	chain := Chain{Certs: []*x509model.Certificate{signer}}
	if !signer.ValidAt(checkTime) {
		return chain, fmt.Errorf("chain: signer certificate not valid at %s", checkTime)
	}

	current := signer
	seen := map[string]bool{string(signer.Raw): true}

	for {
		if isTrustAnchor(current, trustRoots) {
			chain.Trusted = true
			return chain, nil
		}
		if current.IsSelfIssued() {
			// self-signed and not a recognized trust anchor: chain ends
			// untrusted here, matching "walk to a trust anchor" semantics —
			// a self-signed cert with no match in the trust store is not one.
			return chain, nil
		}

		issuer, err := findIssuer(current, pool, trustRoots)
		if err != nil {
			return chain, err
		}
		if issuer == nil {
			return chain, fmt.Errorf("chain: no issuer found for %s", current.Subject.String())
		}
		if seen[string(issuer.Raw)] {
			return chain, fmt.Errorf("chain: cycle detected at %s", issuer.Subject.String())
		}
		if !issuer.ValidAt(checkTime) {
			return chain, fmt.Errorf("chain: issuer %s not valid at %s", issuer.Subject.String(), checkTime)
		}

		seen[string(issuer.Raw)] = true
		chain.Certs = append(chain.Certs, issuer)
		current = issuer
	}
}

func isTrustAnchor(cert *x509model.Certificate, roots []*x509model.Certificate) bool {
	for _, r := range roots {
		if string(r.Raw) == string(cert.Raw) {
			return true
		}
		if cert.Subject.Equal(r.Subject) && string(cert.SPKI.Raw) == string(r.SPKI.Raw) {
			return true
		}
	}
	return false
}

// findIssuer resolves current's issuer, preferring AKI/SKI links (per spec
// section 4.8: "via DN and AKI/SKI links") and falling back to DN equality
// when no SKI/AKI match is found (common for older or minimal certificates
// that omit the extensions). A DN (or AKI/SKI) match alone is not enough to
// select a candidate: several certificates can legitimately share a subject
// DN (e.g. a cross-signed or reissued CA), so every matching candidate is
// tried against current's signature and the first that cryptographically
// verifies is returned, rather than committing to the first name match.
func findIssuer(current *x509model.Certificate, pool, roots []*x509model.Certificate) (*x509model.Certificate, error) {
	candidates := make([]*x509model.Certificate, 0, len(pool)+len(roots))
	candidates = append(candidates, pool...)
	candidates = append(candidates, roots...)

	verifies := func(c *x509model.Certificate) bool {
		return sigalg.Verify(current.SigAlg, c.SPKI, current.TBSDer, current.SigBits.RightAlign())
	}

	aki, hasAKI := current.Extensions.AuthorityKeyID()
	if hasAKI {
		for _, c := range candidates {
			if ski, ok := c.Extensions.SubjectKeyID(); ok && string(ski) == string(aki) && verifies(c) {
				return c, nil
			}
		}
	}

	for _, c := range candidates {
		if c.Subject.Equal(current.Issuer) && verifies(c) {
			return c, nil
		}
	}

	return nil, nil
}
