package revocation

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfsign/internal/testpki"
	"github.com/digitorus/pdfsign/x509model"
)

func TestInfoArchival_AddCRLAndOCSP(t *testing.T) {
	var info InfoArchival
	require.NoError(t, info.AddCRL([]byte("crl-der")))
	require.NoError(t, info.AddOCSP([]byte("ocsp-der")))
	assert.Equal(t, [][]byte{[]byte("crl-der")}, info.CRL)
	assert.Equal(t, [][]byte{[]byte("ocsp-der")}, info.OCSP)
}

func TestCheckCRL(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	issuer, err := x509model.ParseCertificate(pki.IntermediateCerts[len(pki.IntermediateCerts)-1].Raw)
	require.NoError(t, err)
	crl, err := x509model.ParseCRL(pki.CRLBytes)
	require.NoError(t, err)

	// StartCRLServer bakes in a single revoked serial, 9999.
	result, err := CheckCRL(crl, issuer, big.NewInt(9999), time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, result.Status)
	assert.Equal(t, SourceCRL, result.Source)

	result, err = CheckCRL(crl, issuer, big.NewInt(42), time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusGood, result.Status)
}

func TestCombine(t *testing.T) {
	good := Result{Status: StatusGood, Source: SourceOCSP}
	revoked := Result{Status: StatusRevoked, Source: SourceCRL}

	assert.Equal(t, SourceNone, Combine(nil, nil).Source)
	assert.Equal(t, good, Combine(nil, &good))
	assert.Equal(t, good, Combine(&good, nil))

	merged := Combine(&good, &revoked)
	assert.Equal(t, StatusRevoked, merged.Status)

	other := Result{Status: StatusGood, Source: SourceCRL}
	mixed := Combine(&other, &good)
	assert.Equal(t, StatusGood, mixed.Status)
	assert.Equal(t, SourceMixed, mixed.Source)
}
