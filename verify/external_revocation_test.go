package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/x509model"
)

type erroringFetcher struct{}

func (erroringFetcher) FetchCRL(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("network unavailable")
}

func (erroringFetcher) FetchOCSP(ctx context.Context, url string, request []byte) ([]byte, error) {
	return nil, errors.New("network unavailable")
}

func TestCheckRevocationExternal_NoDistributionPoints(t *testing.T) {
	cert := &x509model.Certificate{}
	issuer := &x509model.Certificate{}

	_, err := checkRevocationExternal(context.Background(), cert, issuer, erroringFetcher{}, 5*time.Minute)
	assert.Error(t, err, "a certificate with no OCSP/CRL distribution points should yield no usable evidence")
}

func TestCheckRevocationExternal_FetcherErrors(t *testing.T) {
	cert := &x509model.Certificate{
		Extensions: x509model.ExtensionSet{
			{OID: x509model.OIDExtAuthorityInfo, Value: authorityInfoAccessValue(t, "http://ocsp.example/")},
		},
	}
	issuer := &x509model.Certificate{}

	_, err := checkRevocationExternal(context.Background(), cert, issuer, erroringFetcher{}, 5*time.Minute)
	assert.Error(t, err, "every fetch failing should surface as no usable revocation evidence")
}

// authorityInfoAccessValue builds a minimal AuthorityInfoAccess extnValue
// carrying a single OCSP accessLocation (uniformResourceIdentifier), per
// RFC 5280 section 4.2.2.1. GeneralName's uniformResourceIdentifier choice is
// an implicit primitive [6] IA5String, encoded by hand since der.Builder only
// targets universal tags.
func authorityInfoAccessValue(t *testing.T, uri string) []byte {
	t.Helper()

	methodBld := der.NewBuilder()
	methodBld.AddOID(x509model.OIDAccessMethodOCSP)
	methodDER, err := methodBld.Bytes()
	require.NoError(t, err)

	uriTag := append([]byte{0x86, byte(len(uri))}, []byte(uri)...)

	accessDescBld := der.NewBuilder()
	accessDescBld.AddSequence(func(b *der.Builder) {
		b.AddRaw(methodDER)
		b.AddRaw(uriTag)
	})
	accessDesc, err := accessDescBld.Bytes()
	require.NoError(t, err)

	outerBld := der.NewBuilder()
	outerBld.AddSequence(func(b *der.Builder) {
		b.AddRaw(accessDesc)
	})
	out, err := outerBld.Bytes()
	require.NoError(t, err)
	return out
}
