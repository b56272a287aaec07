package verify

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"go.uber.org/zap"

	"github.com/digitorus/pdf"
)

// File validates every signature field in an already-opened PDF file, per
// spec section 4.10 step 1.
func File(file *os.File, opts VerifyOptions) (resp *Response, err error) {
	finfo, statErr := file.Stat()
	if statErr != nil {
		return nil, fmt.Errorf("failed to stat file: %w", statErr)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek file: %w", err)
	}
	return Reader(file, finfo.Size(), opts)
}

// Reader validates every signature field in a PDF buffer accessible through
// an io.ReaderAt, per spec section 4.10.
func Reader(r io.ReaderAt, size int64, opts VerifyOptions) (resp *Response, err error) {
	log := opts.log()

	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("failed to verify document: %v", rec)
		}
	}()

	data, err := ioutil.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	resp = &Response{}

	rdr, err := pdf.NewReader(r, size)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to open file: %v", err)
		return resp, nil
	}

	var documentInfo DocumentInfo
	for _, x := range rdr.Xref() {
		v := rdr.Resolve(x.Ptr(), x.Ptr())
		parseDocumentInfo(v, &documentInfo)
	}
	resp.DocumentInfo = documentInfo

	slots, err := DefaultLocator{}.Locate(data, StrategyFastScan)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to locate signature fields: %v", err)
		return resp, nil
	}
	if len(slots) == 0 {
		resp.Error = "no digital signature in document"
		return resp, nil
	}

	log.Info("located signature fields", zap.Int("count", len(slots)))

	allIntact := true
	for _, slot := range slots {
		report := verifySlot(data, slot, opts)
		if !report.DocumentIntact {
			allIntact = false
		}
		log.Info("signature verified",
			zap.String("field", report.FieldName),
			zap.Bool("document_intact", report.DocumentIntact),
			zap.Bool("cms_valid", report.CMSValid),
			zap.Int("issue_count", len(report.Issues)))
		resp.Signatures = append(resp.Signatures, report)
	}
	resp.AllDocumentsIntact = allIntact

	return resp, nil
}
