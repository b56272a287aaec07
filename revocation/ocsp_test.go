package revocation

import (
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfsign/internal/testpki"
	"github.com/digitorus/pdfsign/x509model"
)

func TestBuildRequestAndParseResponse(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartCRLServer()
	defer pki.Close()

	_, leaf := pki.IssueLeaf("ocsp-leaf")
	issuerStd := pki.IntermediateCerts[len(pki.IntermediateCerts)-1]

	leafCert, err := x509model.ParseCertificate(leaf.Raw)
	require.NoError(t, err)
	issuerCert, err := x509model.ParseCertificate(issuerStd.Raw)
	require.NoError(t, err)

	reqDER, certID, err := BuildRequest(leafCert, issuerCert)
	require.NoError(t, err)
	assert.NotEmpty(t, reqDER)

	b64 := base64.StdEncoding.EncodeToString(reqDER)
	resp, err := http.Get(pki.Server.URL + "/ocsp/" + b64)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	parsed, err := ParseResponse(body)
	require.NoError(t, err)
	require.Equal(t, ResponseSuccessful, parsed.Status)
	require.NotNil(t, parsed.Basic)

	single, ok := MatchSingleResponse(parsed.Basic, certID)
	require.True(t, ok)
	assert.Equal(t, StatusGood, single.Status)

	responder, ok := FindResponderCert(parsed.Basic, []*x509model.Certificate{issuerCert})
	require.True(t, ok)
	assert.True(t, VerifyOCSPResponse(parsed.Basic, responder))
}
