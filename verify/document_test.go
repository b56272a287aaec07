package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentInfoParsing(t *testing.T) {
	testFilePath := filepath.Join("..", "testfiles", "testfile30.pdf")
	if _, err := os.Stat(testFilePath); os.IsNotExist(err) {
		t.Skipf("test file %s does not exist", testFilePath)
	}
	file, err := os.Open(testFilePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	resp, err := File(file, VerifyOptions{})
	require.NoError(t, err)

	info := resp.DocumentInfo
	assert.NotZero(t, info.Pages)
	for name, v := range map[string]string{
		"Author": info.Author, "Creator": info.Creator, "Producer": info.Producer,
		"Title": info.Title, "Subject": info.Subject,
	} {
		if v == "" {
			t.Logf("field %s is empty", name)
		}
	}
}
