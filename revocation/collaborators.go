package revocation

import (
	"context"

	"github.com/digitorus/pdfsign/x509model"
)

// Fetcher is the narrow collaborator interface spec section 1 names as
// "RevocationFetcher": HTTP CRL/OCSP fetching is deliberately out of the
// cryptographic core, so callers supply an implementation (the teacher's own
// net/http-based GetTSA pattern in sign/pdfsignature.go is the grounding for
// what a default adapter looks like, just for CRL/OCSP instead of TSA).
type Fetcher interface {
	FetchCRL(ctx context.Context, url string) ([]byte, error)
	FetchOCSP(ctx context.Context, url string, request []byte) ([]byte, error)
}

// TimestampAuthority is the narrow collaborator interface for RFC 3161
// timestamp requests, named in spec section 1. The core only ever consumes
// the DER token bytes it returns (via cms.VerifyTimestampToken); it never
// performs the HTTP round-trip itself.
type TimestampAuthority interface {
	Timestamp(ctx context.Context, messageImprint []byte) (tokenDER []byte, err error)
}

// TrustRootsProvider is the narrow collaborator interface for trust-anchor
// resolution, named in spec section 1/9: keystore parsing (PEM bundles, JKS,
// BKS, the OS trust store) stays outside the core, which only ever needs the
// parsed certificates themselves.
type TrustRootsProvider interface {
	TrustRoots() []*x509model.Certificate
}
