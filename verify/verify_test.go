package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T, name string) *os.File {
	t.Helper()
	path := filepath.Join("..", "testfiles", name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("test file %s does not exist", path)
	}
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFile(t *testing.T) {
	f := openTestFile(t, "testfile30.pdf")

	resp, err := File(f, VerifyOptions{})
	require.NoError(t, err)
	require.NotNil(t, resp)

	if resp.Error != "" {
		t.Logf("verification error: %s", resp.Error)
	}
	require.NotEmpty(t, resp.Signatures)

	for i, sig := range resp.Signatures {
		assert.NotEmpty(t, sig.FieldName, "signature %d missing field name", i)
	}

	assert.NotEmpty(t, resp.DocumentInfo.Pages)
}

func TestReader(t *testing.T) {
	f := openTestFile(t, "testfile30.pdf")
	fi, err := f.Stat()
	require.NoError(t, err)

	resp, err := Reader(f, fi.Size(), VerifyOptions{})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotEmpty(t, resp.Signatures)
}

func TestFileWithInvalidFile(t *testing.T) {
	tmp, err := os.CreateTemp("", "invalid_*.pdf")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(tmp.Name()) })
	t.Cleanup(func() { _ = tmp.Close() })

	_, err = tmp.WriteString("this is not a valid PDF file")
	require.NoError(t, err)
	_, err = tmp.Seek(0, 0)
	require.NoError(t, err)

	resp, err := File(tmp, VerifyOptions{})
	require.NoError(t, err, "File reports PDF parse failures via Response.Error, not a Go error")
	assert.NotEmpty(t, resp.Error)
}

func TestFileWithUnsignedPDF(t *testing.T) {
	f := openTestFile(t, "testfile12.pdf")

	resp, err := File(f, VerifyOptions{})
	require.NoError(t, err)
	if len(resp.Signatures) == 0 {
		assert.NotEmpty(t, resp.Error)
	}
}
