package sign

import (
	"crypto"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pdfsign/verify"
)

// defaultReserveBytes sizes the /Contents placeholder generously enough to
// hold a typical ICP-Brasil signing certificate plus chain, an embedded OCSP
// response or CRL, and an RFC 3161 timestamp token.
const defaultReserveBytes = 16384

// Sentinel errors for the external-signing preparer/embedder, matching the
// stable machine-readable codes a caller is expected to branch on.
var (
	ErrPKCS7TooLarge        = errors.New("pkcs7_too_large")
	ErrReserveBytesTooSmall = errors.New("reserve_bytes_too_small")
	ErrPageOutOfRange       = errors.New("page_out_of_range")
)

// ExternalSigningOptions configures PrepareForExternalSigning. Unlike
// SignData, it carries no Signer/Certificate: the caller produces the PKCS#7
// signature out of process (an HSM, a signing applet, a remote Gov.br
// session) and hands it back to EmbedPKCS7.
type ExternalSigningOptions struct {
	Page      uint32
	Rect      [4]float64
	FieldName string
	Metadata  SignDataSignatureInfo

	// AppearanceCallback draws a custom appearance stream instead of the
	// default text/image rendering in appearance.go.
	AppearanceCallback func(context *SignContext, rect [4]float64) ([]byte, error)

	// ReserveBytes is the raw (pre-hex) byte length reserved for the
	// /Contents placeholder. Defaults to defaultReserveBytes.
	ReserveBytes uint32

	// DigestAlgorithm is the hash the caller's external signer will use
	// over the returned PreparedSigning.DigestBase64. Defaults to SHA-256.
	DigestAlgorithm crypto.Hash

	CertType   CertType
	DocMDPPerm DocMDPPerm

	// CompressLevel determines compression level (zlib) for stream objects.
	CompressLevel int
}

// PreparedSigning is the result of PrepareForExternalSigning: a PDF revision
// with a signature placeholder already positioned and sized, plus the
// information an external signer needs to produce a PKCS#7 over it.
type PreparedSigning struct {
	Bytes        []byte
	ByteRange    [4]int64
	DigestBase64 string
}

// PrepareForExternalSigning builds an incremental update containing a
// signature widget, an empty /Contents placeholder of exactly
// 2*ReserveBytes hex characters, and a finalized /ByteRange, then returns the
// digest over the ByteRange gap for an external signer to sign. It never
// touches key material: the caller is responsible for producing the PKCS#7
// handed to EmbedPKCS7.
func PrepareForExternalSigning(input io.ReadSeeker, rdr *pdf.Reader, size int64, opts ExternalSigningOptions) (*PreparedSigning, error) {
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.CertType == 0 {
		opts.CertType = ApprovalSignature
	}
	reserveBytes := opts.ReserveBytes
	if reserveBytes == 0 {
		reserveBytes = defaultReserveBytes
	}
	if reserveBytes < 256 {
		return nil, fmt.Errorf("%w: reserve_bytes %d is too small to hold any realistic PKCS#7", ErrReserveBytesTooSmall, reserveBytes)
	}
	digestAlg := opts.DigestAlgorithm
	if !digestAlg.Available() {
		digestAlg = crypto.SHA256
	}

	context := &SignContext{
		PDFReader: rdr,
		InputFile: input,
		SignData: SignData{
			Signature: SignDataSignature{
				CertType:   opts.CertType,
				DocMDPPerm: opts.DocMDPPerm,
				Info:       opts.Metadata,
			},
			DigestAlgorithm: digestAlg,
			Appearance: Appearance{
				Visible:     true,
				FieldName:   opts.FieldName,
				Page:        opts.Page,
				LowerLeftX:  opts.Rect[0],
				LowerLeftY:  opts.Rect[1],
				UpperRightX: opts.Rect[2],
				UpperRightY: opts.Rect[3],
				Renderer:    opts.AppearanceCallback,
			},
			CompressLevel: opts.CompressLevel,
		},
		SignatureMaxLengthBase: uint32(hex.EncodedLen(int(reserveBytes))),
		CompressLevel:          opts.CompressLevel,
	}

	existingSignatures, err := context.fetchExistingSignatures()
	if err != nil {
		return nil, err
	}
	context.existingSignatures = existingSignatures

	context.resetContext()

	if err := context.copyInputToOutput(); err != nil {
		return nil, err
	}

	context.SignatureMaxLength = context.SignatureMaxLengthBase

	if err := context.addSignatureObject(); err != nil {
		return nil, err
	}

	if err := context.handleVisualSignature(); err != nil {
		return nil, wrapPageOutOfRange(opts.Page, err)
	}

	if err := context.addCatalog(); err != nil {
		return nil, err
	}

	if err := context.finalizePDFStructure(); err != nil {
		return nil, err
	}

	if _, err := context.OutputBuffer.Seek(0, 0); err != nil {
		return nil, err
	}
	fileContent := context.OutputBuffer.Buff.Bytes()

	digest := digestAlg.New()
	digest.Write(fileContent[context.ByteRangeValues[0]:(context.ByteRangeValues[0] + context.ByteRangeValues[1])])
	digest.Write(fileContent[context.ByteRangeValues[2]:(context.ByteRangeValues[2] + context.ByteRangeValues[3])])

	byteRange := [4]int64{
		context.ByteRangeValues[0],
		context.ByteRangeValues[1],
		context.ByteRangeValues[2],
		context.ByteRangeValues[3],
	}

	out := make([]byte, len(fileContent))
	copy(out, fileContent)

	return &PreparedSigning{
		Bytes:        out,
		ByteRange:    byteRange,
		DigestBase64: base64.StdEncoding.EncodeToString(digest.Sum(nil)),
	}, nil
}

func wrapPageOutOfRange(page uint32, err error) error {
	return fmt.Errorf("%w: page %d: %v", ErrPageOutOfRange, page, err)
}

// EmbedPKCS7 splices a caller-produced PKCS#7 (or CMS/CAdES) DER blob into
// the /Contents placeholder of a PDF produced by PrepareForExternalSigning.
// Only bytes inside the placeholder are modified; the file length, and
// therefore the ByteRange already written, never change.
func EmbedPKCS7(prepared []byte, pkcs7DER []byte) ([]byte, error) {
	var locator verify.DefaultLocator

	contentsStart, contentsEnd, err := locator.FindContentsRange(prepared)
	if err != nil {
		return nil, err
	}

	reserveHexLen := contentsEnd - contentsStart
	hexLen := hex.EncodedLen(len(pkcs7DER))
	if hexLen > reserveHexLen {
		return nil, fmt.Errorf("%w: pkcs7 is %d bytes, placeholder only holds %d", ErrPKCS7TooLarge, len(pkcs7DER), reserveHexLen/2)
	}

	out := make([]byte, len(prepared))
	copy(out, prepared)

	encoded := make([]byte, hexLen)
	hex.Encode(encoded, pkcs7DER)
	// ASCII-uppercase, per the convention the teacher's own hex writer uses
	// for the /Contents placeholder.
	for i, c := range encoded {
		if c >= 'a' && c <= 'f' {
			encoded[i] = c - ('a' - 'A')
		}
	}
	copy(out[contentsStart:contentsStart+hexLen], encoded)

	for i := contentsStart + hexLen; i < contentsEnd; i++ {
		out[i] = '0'
	}

	return out, nil
}
