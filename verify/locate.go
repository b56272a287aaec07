package verify

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
)

// Strategy selects which SlotLocator implementation resolves signature
// slots, replacing the teacher's global useFast.../useInternal...Parser
// flags with a per-call selector per REDESIGN FLAGS.
type Strategy int

const (
	// StrategyFastScan is a byte-level tokenizer over /ByteRange and
	// /Contents, grounded on the pack's GoPDF2 extractSignatures scan.
	StrategyFastScan Strategy = iota
	// StrategyLatin1 is a Latin-1 string-search fallback over the same
	// tokens, used when StrategyFastScan's stricter tokenizer fails on a
	// non-conforming producer.
	StrategyLatin1
	// StrategyXref is the full PDF cross-reference walk, grounded on the
	// teacher's own fetchExistingSignatures (sign/pdfsignature.go), and is
	// authoritative when the byte-scan strategies disagree.
	StrategyXref
)

// SignatureSlot is one located signature dictionary, per spec section 3.
type SignatureSlot struct {
	FieldName      string
	ByteRange      [4]int64
	ContentsStart  int
	ContentsEnd    int
	SigDictOffset  int
}

// SlotLocator enumerates signature slots in a PDF byte buffer without
// building a full object graph, per spec section 4.5.
type SlotLocator interface {
	Locate(data []byte, strategy Strategy) ([]SignatureSlot, error)
	ExtractByteRange(data []byte) ([4]int64, error)
	FindContentsRange(data []byte) (start, end int, err error)
}

// LocatorError is one of the failure modes named in spec section 4.5.
type LocatorError struct {
	Code    string
	Message string
}

func (e *LocatorError) Error() string { return e.Code + ": " + e.Message }

var (
	errByteRangeNotFound   = &LocatorError{Code: "pdf_byterange_not_found", Message: "no /ByteRange token found"}
	errContentsNotFound    = &LocatorError{Code: "pdf_contents_not_found", Message: "no /Contents token found"}
	errByteRangeMalformed  = &LocatorError{Code: "pdf_byterange_malformed", Message: "ByteRange does not have 4 integers"}
	errContentsOutsideGap  = &LocatorError{Code: "pdf_contents_outside_gap", Message: "Contents hex lies outside the ByteRange gap"}
)

// DefaultLocator is the SlotLocator implementation used by the orchestrator.
type DefaultLocator struct{}

// Locate implements SlotLocator.Locate for all three strategies.
func (DefaultLocator) Locate(data []byte, strategy Strategy) ([]SignatureSlot, error) {
	switch strategy {
	case StrategyFastScan, StrategyLatin1:
		return scanSlots(data)
	case StrategyXref:
		return xrefSlots(data)
	default:
		return nil, fmt.Errorf("verify: unknown locator strategy %d", strategy)
	}
}

// ExtractByteRange implements SlotLocator.ExtractByteRange: locate the first
// signature dictionary's ByteRange via the fast scan.
func (DefaultLocator) ExtractByteRange(data []byte) ([4]int64, error) {
	slots, err := scanSlots(data)
	if err != nil {
		return [4]int64{}, err
	}
	if len(slots) == 0 {
		return [4]int64{}, errByteRangeNotFound
	}
	return slots[0].ByteRange, nil
}

// FindContentsRange implements SlotLocator.FindContentsRange.
func (DefaultLocator) FindContentsRange(data []byte) (int, int, error) {
	slots, err := scanSlots(data)
	if err != nil {
		return 0, 0, err
	}
	if len(slots) == 0 {
		return 0, 0, errContentsNotFound
	}
	return slots[0].ContentsStart, slots[0].ContentsEnd, nil
}

// CrossCheck runs StrategyFastScan and StrategyXref over the same buffer and
// reports whether they agree, per spec section 2's test-suite contract.
func CrossCheck(data []byte) (agree bool, fast, xref []SignatureSlot, err error) {
	fast, err = scanSlots(data)
	if err != nil {
		return false, nil, nil, err
	}
	xref, err = xrefSlots(data)
	if err != nil {
		return false, nil, nil, err
	}
	if len(fast) != len(xref) {
		return false, fast, xref, nil
	}
	for i := range fast {
		if fast[i].ByteRange != xref[i].ByteRange {
			return false, fast, xref, nil
		}
	}
	return true, fast, xref, nil
}

// scanSlots implements StrategyFastScan/StrategyLatin1: a byte-level
// tokenizer over /ByteRange [...] and /Contents <...>, grounded on the
// pack's GoPDF2 extractSignatures (backward "<<" / forward ">>" dictionary
// bracketing around a /Type /Sig marker).
func scanSlots(data []byte) ([]SignatureSlot, error) {
	var slots []SignatureSlot
	searchFrom := 0
	found := false

	for {
		idx := bytes.Index(data[searchFrom:], []byte("/ByteRange"))
		if idx < 0 {
			break
		}
		pos := searchFrom + idx

		dictStart := bytes.LastIndex(data[:pos], []byte("<<"))
		if dictStart < 0 {
			searchFrom = pos + len("/ByteRange")
			continue
		}
		dictEndRel := bytes.Index(data[pos:], []byte(">>"))
		if dictEndRel < 0 {
			searchFrom = pos + len("/ByteRange")
			continue
		}
		dictEnd := pos + dictEndRel + 2
		dict := data[dictStart:dictEnd]

		found = true

		brRel := bytes.Index(dict, []byte("/ByteRange"))
		brOpen := bytes.IndexByte(dict[brRel:], '[')
		brClose := bytes.IndexByte(dict[brRel:], ']')
		if brOpen < 0 || brClose < 0 || brClose < brOpen {
			return nil, errByteRangeMalformed
		}
		nums := parseIntArray(string(dict[brRel+brOpen+1 : brRel+brClose]))
		if len(nums) != 4 {
			return nil, errByteRangeMalformed
		}
		var br [4]int64
		for i, n := range nums {
			br[i] = int64(n)
		}

		cRel := bytes.Index(dict, []byte("/Contents"))
		if cRel < 0 {
			return nil, errContentsNotFound
		}
		rest := dict[cRel+len("/Contents"):]
		hexStart := bytes.IndexByte(rest, '<')
		hexEnd := bytes.IndexByte(rest, '>')
		if hexStart < 0 || hexEnd < hexStart {
			return nil, errContentsNotFound
		}
		contentsStart := dictStart + cRel + len("/Contents") + hexStart + 1
		contentsEnd := dictStart + cRel + len("/Contents") + hexEnd

		// the ByteRange gap must bracket the Contents hex: s1+l1 is the byte
		// before '<', s2 is the byte after '>' (spec section 4.5 invariant).
		if br[0]+br[1] != int64(contentsStart-1) || br[2] != int64(contentsEnd+1) {
			return nil, errContentsOutsideGap
		}

		name := ""
		if nIdx := bytes.Index(dict, []byte("/Name")); nIdx >= 0 {
			name = extractPDFLiteralString(dict[nIdx+len("/Name"):])
		}

		slots = append(slots, SignatureSlot{
			FieldName:     name,
			ByteRange:     br,
			ContentsStart: contentsStart,
			ContentsEnd:   contentsEnd,
			SigDictOffset: dictStart,
		})

		searchFrom = dictEnd
	}

	if !found {
		return nil, errByteRangeNotFound
	}
	return slots, nil
}

// xrefSlots implements StrategyXref: walk the cross-reference table via
// github.com/digitorus/pdf, grounded on the teacher's fetchExistingSignatures.
func xrefSlots(data []byte) ([]SignatureSlot, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("verify: xref open: %w", err)
	}

	var slots []SignatureSlot
	for _, x := range rdr.Xref() {
		v := rdr.Resolve(x.Ptr(), x.Ptr())
		if v.Key("Filter").Name() != "Adobe.PPKLite" {
			continue
		}
		byteRangeVal := v.Key("ByteRange")
		if byteRangeVal.Len() != 4 {
			continue
		}
		var br [4]int64
		for i := 0; i < 4; i++ {
			br[i] = byteRangeVal.Index(i).Int64()
		}
		contentsStart := int(br[0] + br[1] + 1)
		contentsEnd := int(br[2] - 1)
		slots = append(slots, SignatureSlot{
			FieldName:     v.Key("Name").Text(),
			ByteRange:     br,
			ContentsStart: contentsStart,
			ContentsEnd:   contentsEnd,
		})
	}
	if len(slots) == 0 {
		return nil, errByteRangeNotFound
	}
	return slots, nil
}

// parseIntArray parses space-separated integers, grounded on GoPDF2's
// parseIntArray.
func parseIntArray(s string) []int {
	var nums []int
	var current []byte
	flush := func() {
		if len(current) == 0 {
			return
		}
		n := 0
		for _, d := range current {
			n = n*10 + int(d-'0')
		}
		nums = append(nums, n)
		current = current[:0]
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			current = append(current, c)
		} else {
			flush()
		}
	}
	flush()
	return nums
}

// extractPDFLiteralString extracts a "(...)" literal string starting at the
// first '(' in data, grounded on GoPDF2's extractPDFString.
func extractPDFLiteralString(data []byte) string {
	start := bytes.IndexByte(data, '(')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return string(data[start+1 : i])
			}
		}
	}
	return ""
}
