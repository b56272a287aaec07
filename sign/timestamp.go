package sign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/digitorus/pdfsign/cms"
	"github.com/digitorus/pdfsign/der"
)

// buildTimestampRequest builds the DER of a TimeStampReq (RFC 3161 section
// 2.4.1) over digest, requesting the TSA's own certificate be embedded in the
// response so the returned token is self-contained.
func buildTimestampRequest(hash crypto.Hash, digest []byte) ([]byte, error) {
	hashOID, ok := cms.DigestAlgorithmOID(hash)
	if !ok {
		return nil, fmt.Errorf("timestamp request: unsupported hash %v", hash)
	}

	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("timestamp request: nonce: %w", err)
	}

	bld := der.NewBuilder()
	bld.AddSequence(func(b *der.Builder) {
		b.AddInt(1) // version
		b.AddSequence(func(mi *der.Builder) { // messageImprint
			mi.AddSequence(func(alg *der.Builder) {
				alg.AddOID(hashOID)
				alg.AddNull()
			})
			mi.AddOctetString(digest)
		})
		b.AddBigInt(nonce)
		b.AddBool(true) // certReq: ask the TSA to embed its signing certificate
	})
	return bld.Bytes()
}

// parseTimestampResponse extracts the raw timeStampToken ContentInfo DER from
// a TimeStampResp (RFC 3161 section 2.4.2), rejecting anything but
// granted/grantedWithMods status.
func parseTimestampResponse(data []byte) ([]byte, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("timestamp response: %w", err)
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("timestamp response: %w", err)
	}

	statusVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("timestamp response: missing status: %w", err)
	}
	statusSeq, err := statusVal.Sequence()
	if err != nil {
		return nil, fmt.Errorf("timestamp response: status: %w", err)
	}
	statusIntVal, err := statusSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("timestamp response: missing PKIStatus: %w", err)
	}
	status, err := statusIntVal.Int()
	if err != nil {
		return nil, fmt.Errorf("timestamp response: PKIStatus: %w", err)
	}
	// granted (0) and grantedWithMods (1) both carry a usable token.
	if status != 0 && status != 1 {
		return nil, fmt.Errorf("timestamp response: PKIStatus %d (not granted)", status)
	}

	if seq.Empty() {
		return nil, fmt.Errorf("timestamp response: missing timeStampToken")
	}
	tokenVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("timestamp response: timeStampToken: %w", err)
	}
	return tokenVal.FullBytes, nil
}

// GetTSA requests an RFC 3161 timestamp token over sign_content's digest from
// the configured TSA, returning the raw timeStampToken DER.
func (context *SignContext) GetTSA(sign_content []byte) ([]byte, error) {
	hash := context.SignData.DigestAlgorithm
	if !hash.Available() {
		hash = crypto.SHA256
	}
	digest := hash.New()
	digest.Write(sign_content)

	tsRequest, err := buildTimestampRequest(hash, digest.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req, err := http.NewRequest("POST", context.SignData.TSA.URL, bytes.NewReader(tsRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request (%s): %w", context.SignData.TSA.URL, err)
	}
	req.Header.Add("Content-Type", "application/timestamp-query")
	req.Header.Add("Content-Transfer-Encoding", "binary")
	if context.SignData.TSA.Username != "" && context.SignData.TSA.Password != "" {
		req.SetBasicAuth(context.SignData.TSA.Username, context.SignData.TSA.Password)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	if err != nil || code < 200 || code > 299 {
		if err == nil {
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(resp.Body)
			return nil, errors.New("non success response (" + strconv.Itoa(code) + "): " + string(body))
		}
		return nil, errors.New("non success response (" + strconv.Itoa(code) + ")")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return parseTimestampResponse(respBody)
}
