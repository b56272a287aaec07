// Package der implements a typed DER (Distinguished Encoding Rules) codec.
//
// It is deliberately independent from the standard library's encoding/asn1:
// this package exposes every decoded element as a Value that remembers its
// own exact encoding (Value.FullBytes), which is what lets callers re-derive
// a certificate's TBS bytes, re-tag a signed-attributes SET for CMS
// verification, or detect non-canonical encodings, none of which
// encoding/asn1 exposes.
//
// The low-level cursor is golang.org/x/crypto/cryptobyte, the same library
// the teacher codebase already reaches for when hand-building ASN.1
// structures (see sign/pdfsignature.go's SigningCertificate attribute).
package der

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Error codes, stable and machine-readable per the module's error taxonomy.
var (
	ErrTruncated     = errors.New("asn1_truncated")
	ErrNonCanonical  = errors.New("asn1_non_canonical")
	ErrTagMismatch   = errors.New("asn1_tag_mismatch")
	ErrLengthOverflow = errors.New("asn1_length_overflow")
)

// Universal DER tags used throughout this module.
const (
	TagBoolean         = cbasn1.BOOLEAN
	TagInteger         = cbasn1.INTEGER
	TagBitString       = cbasn1.BIT_STRING
	TagOctetString     = cbasn1.OCTET_STRING
	TagNull            = cbasn1.NULL
	TagOID             = cbasn1.OBJECT_IDENTIFIER
	TagEnum            = cbasn1.ENUM
	TagUTF8String      = cbasn1.UTF8String
	TagSequence        = cbasn1.SEQUENCE
	TagSet             = cbasn1.SET
	TagPrintableString = cbasn1.PrintableString
	TagT61String       = cbasn1.T61String
	TagIA5String       = cbasn1.IA5String
	TagUTCTime         = cbasn1.UTCTime
	TagGeneralizedTime = cbasn1.GeneralizedTime
	TagBMPString       = cbasn1.Tag(30)
	TagGeneralString   = cbasn1.GeneralString
)

// Value is a single decoded DER element. It borrows from the owning buffer:
// FullBytes and Bytes are sub-slices of the original input whenever the
// caller used Decode/DecodeAll directly on owned or longer-lived storage.
type Value struct {
	Tag       cbasn1.Tag
	FullBytes []byte // the entire TLV encoding, tag+length+content
	Bytes     []byte // just the content octets
}

// Decode reads exactly one DER element from data. It fails if data contains
// trailing bytes after that element; use DecodeAll for a byte stream meant to
// be read as a TLV sequence without a single top-level wrapper.
func Decode(data []byte) (Value, error) {
	v, rest, err := ReadElement(data)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after top-level element", ErrNonCanonical, len(rest))
	}
	return v, nil
}

// ReadElement reads a single DER TLV from the front of data and returns the
// remaining bytes.
func ReadElement(data []byte) (Value, []byte, error) {
	input := cryptobyte.String(data)
	var tag cbasn1.Tag
	var full cryptobyte.String

	// ReadAnyASN1Element returns the whole element (tag+length+content) into
	// full, and rejects indefinite-length/non-minimal BER-only constructs,
	// which is exactly the DER-canonicality refusal spec section 4.1 wants.
	if !input.ReadAnyASN1Element(&full, &tag) {
		return Value{}, nil, fmt.Errorf("%w: could not read ASN.1 element", ErrTruncated)
	}
	rest := []byte(input)

	content, err := stripHeader([]byte(full))
	if err != nil {
		return Value{}, nil, err
	}

	return Value{Tag: tag, FullBytes: []byte(full), Bytes: content}, rest, nil
}

// DecodeAll reads a sequence of concatenated top-level DER elements (for
// example the contents of a constructed SEQUENCE or SET) and returns them in
// order.
func DecodeAll(data []byte) ([]Value, error) {
	var out []Value
	rest := data
	for len(rest) > 0 {
		v, r, err := ReadElement(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		rest = r
	}
	return out, nil
}

// stripHeader re-parses a full TLV encoding to separate the identifier+length
// header from the content octets, validating DER length canonicality along
// the way (cryptobyte already rejects indefinite lengths and non-minimal
// lengths when reading, so a successful read here implies canonicality).
func stripHeader(full []byte) ([]byte, error) {
	s := cryptobyte.String(full)
	var tag cbasn1.Tag
	if !s.ReadAnyASN1(&s, &tag) {
		return nil, fmt.Errorf("%w: malformed TLV header", ErrTruncated)
	}
	return []byte(s), nil
}

// Is reports whether the value carries the given universal tag (ignoring
// class/constructed bits beyond what the tag constant already encodes).
func (v Value) Is(tag cbasn1.Tag) bool { return v.Tag == tag }

// Reader walks a sequence of concatenated DER elements, such as the content
// octets of a SEQUENCE or SET OF.
type Reader struct {
	data []byte
}

// NewReader wraps raw content octets (e.g. a SEQUENCE's Value.Bytes) for
// sequential element-by-element reading.
func NewReader(content []byte) *Reader { return &Reader{data: content} }

// Sequence returns a Reader over the content of a SEQUENCE value.
func (v Value) Sequence() (*Reader, error) {
	if v.Tag != TagSequence {
		return nil, fmt.Errorf("%w: expected SEQUENCE, got tag %d", ErrTagMismatch, v.Tag)
	}
	return NewReader(v.Bytes), nil
}

// SetOf returns a Reader over the content of a SET value.
func (v Value) SetOf() (*Reader, error) {
	if v.Tag != TagSet {
		return nil, fmt.Errorf("%w: expected SET, got tag %d", ErrTagMismatch, v.Tag)
	}
	return NewReader(v.Bytes), nil
}

// Empty reports whether the reader has no more elements.
func (r *Reader) Empty() bool { return len(r.data) == 0 }

// Next reads the next element from the reader.
func (r *Reader) Next() (Value, error) {
	if r.Empty() {
		return Value{}, fmt.Errorf("%w: no more elements", ErrTruncated)
	}
	v, rest, err := ReadElement(r.data)
	if err != nil {
		return Value{}, err
	}
	r.data = rest
	return v, nil
}

// PeekTag returns the tag of the next element without consuming it, or false
// if the reader is empty.
func (r *Reader) PeekTag() (cbasn1.Tag, bool) {
	if r.Empty() {
		return 0, false
	}
	s := cryptobyte.String(r.data)
	var tag cbasn1.Tag
	if !s.ReadAnyASN1Element(&cryptobyte.String{}, &tag) {
		return 0, false
	}
	return tag, true
}

// All drains the reader into a slice.
func (r *Reader) All() ([]Value, error) {
	var out []Value
	for !r.Empty() {
		v, err := r.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Int decodes an INTEGER value that fits in an int64.
func (v Value) Int() (int64, error) {
	if v.Tag != TagInteger {
		return 0, fmt.Errorf("%w: expected INTEGER, got tag %d", ErrTagMismatch, v.Tag)
	}
	s := cryptobyte.String(v.FullBytes)
	var out int64
	if !s.ReadASN1Integer(&out) {
		return 0, fmt.Errorf("%w: INTEGER does not fit in int64 or is malformed", ErrLengthOverflow)
	}
	return out, nil
}

// BigInt decodes an arbitrary-precision INTEGER.
func (v Value) BigInt() (*big.Int, error) {
	if v.Tag != TagInteger {
		return nil, fmt.Errorf("%w: expected INTEGER, got tag %d", ErrTagMismatch, v.Tag)
	}
	s := cryptobyte.String(v.FullBytes)
	out := new(big.Int)
	if !s.ReadASN1Integer(out) {
		return nil, fmt.Errorf("%w: malformed INTEGER", ErrTruncated)
	}
	return out, nil
}

// Bool decodes a BOOLEAN value.
func (v Value) Bool() (bool, error) {
	if v.Tag != TagBoolean {
		return false, fmt.Errorf("%w: expected BOOLEAN, got tag %d", ErrTagMismatch, v.Tag)
	}
	if len(v.Bytes) != 1 {
		return false, fmt.Errorf("%w: BOOLEAN must be one byte", ErrNonCanonical)
	}
	return v.Bytes[0] != 0x00, nil
}

// OID is a parsed ASN.1 OBJECT IDENTIFIER, stored as its arc components.
type OID []uint64

// String renders the OID in dotted-decimal form.
func (o OID) String() string {
	s := ""
	for i, arc := range o {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%d", arc)
	}
	return s
}

// Equal reports whether two OIDs have identical arcs.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// OIDFromInts builds an OID from literal arc values (convenience for
// referencing well-known OIDs in code).
func OIDFromInts(arcs ...uint64) OID { return OID(arcs) }

// OID decodes an OBJECT IDENTIFIER value.
func (v Value) OID() (OID, error) {
	if v.Tag != TagOID {
		return nil, fmt.Errorf("%w: expected OBJECT IDENTIFIER, got tag %d", ErrTagMismatch, v.Tag)
	}
	arcs, err := decodeOIDBytes(v.Bytes)
	if err != nil {
		return nil, err
	}
	return OID(arcs), nil
}

func decodeOIDBytes(b []byte) ([]uint64, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty OID", ErrNonCanonical)
	}
	var arcs []uint64
	first := true
	var val uint64
	for _, by := range b {
		val = val<<7 | uint64(by&0x7f)
		if by&0x80 == 0 {
			if first {
				if val < 40 {
					arcs = append(arcs, 0, val)
				} else if val < 80 {
					arcs = append(arcs, 1, val-40)
				} else {
					arcs = append(arcs, 2, val-80)
				}
				first = false
			} else {
				arcs = append(arcs, val)
			}
			val = 0
		}
	}
	if val != 0 {
		return nil, fmt.Errorf("%w: truncated OID arc", ErrTruncated)
	}
	return arcs, nil
}

// BitString is a BIT STRING value together with its unused-bit count.
type BitString struct {
	Bytes     []byte
	UnusedBits int
}

// RightAlign returns the bit string's bytes as a big-endian byte slice with
// the unused bits (if any) masked to zero already (DER already guarantees
// this, this is a convenience accessor for callers).
func (b BitString) RightAlign() []byte { return b.Bytes }

// BitString decodes a BIT STRING value.
func (v Value) BitString() (BitString, error) {
	if v.Tag != TagBitString {
		return BitString{}, fmt.Errorf("%w: expected BIT STRING, got tag %d", ErrTagMismatch, v.Tag)
	}
	if len(v.Bytes) == 0 {
		return BitString{}, fmt.Errorf("%w: empty BIT STRING", ErrNonCanonical)
	}
	unused := int(v.Bytes[0])
	if unused > 7 {
		return BitString{}, fmt.Errorf("%w: invalid unused-bit count %d", ErrNonCanonical, unused)
	}
	return BitString{Bytes: v.Bytes[1:], UnusedBits: unused}, nil
}

// OctetString decodes an OCTET STRING value.
func (v Value) OctetString() ([]byte, error) {
	if v.Tag != TagOctetString {
		return nil, fmt.Errorf("%w: expected OCTET STRING, got tag %d", ErrTagMismatch, v.Tag)
	}
	return v.Bytes, nil
}

// Null validates a NULL value.
func (v Value) Null() error {
	if v.Tag != TagNull {
		return fmt.Errorf("%w: expected NULL, got tag %d", ErrTagMismatch, v.Tag)
	}
	if len(v.Bytes) != 0 {
		return fmt.Errorf("%w: NULL must be empty", ErrNonCanonical)
	}
	return nil
}

// String decodes any of the common directory/character string types as a Go
// string, without enforcing the charset (this module only ever compares or
// displays these, never round-trips them into a constrained charset).
func (v Value) String() (string, error) {
	switch v.Tag {
	case TagUTF8String, TagPrintableString, TagIA5String, TagT61String, TagGeneralString:
		return string(v.Bytes), nil
	case TagBMPString:
		if len(v.Bytes)%2 != 0 {
			return "", fmt.Errorf("%w: BMPString has odd length", ErrNonCanonical)
		}
		runes := make([]rune, 0, len(v.Bytes)/2)
		for i := 0; i < len(v.Bytes); i += 2 {
			runes = append(runes, rune(uint16(v.Bytes[i])<<8|uint16(v.Bytes[i+1])))
		}
		return string(runes), nil
	default:
		return "", fmt.Errorf("%w: not a string type, tag %d", ErrTagMismatch, v.Tag)
	}
}

// UTCTime decodes a UTCTime value. Per spec: YYMMDDHHMMSS[Z|±HHMM], with
// YY<50 mapped to 20YY and YY>=50 mapped to 19YY.
func (v Value) UTCTime() (time.Time, error) {
	if v.Tag != TagUTCTime {
		return time.Time{}, fmt.Errorf("%w: expected UTCTime, got tag %d", ErrTagMismatch, v.Tag)
	}
	return parseUTCTime(string(v.Bytes))
}

// GeneralizedTime decodes a GeneralizedTime value. Per spec:
// YYYYMMDDHHMMSS[.fff][Z|±HHMM].
func (v Value) GeneralizedTime() (time.Time, error) {
	if v.Tag != TagGeneralizedTime {
		return time.Time{}, fmt.Errorf("%w: expected GeneralizedTime, got tag %d", ErrTagMismatch, v.Tag)
	}
	return parseGeneralizedTime(string(v.Bytes))
}

// AnyTime decodes either a UTCTime or GeneralizedTime value, as commonly
// needed for fields like CRL thisUpdate/nextUpdate that may be either.
func (v Value) AnyTime() (time.Time, error) {
	switch v.Tag {
	case TagUTCTime:
		return v.UTCTime()
	case TagGeneralizedTime:
		return v.GeneralizedTime()
	default:
		return time.Time{}, fmt.Errorf("%w: expected UTCTime or GeneralizedTime, got tag %d", ErrTagMismatch, v.Tag)
	}
}

func parseUTCTime(s string) (time.Time, error) {
	const base = "0601021504"
	if len(s) < len(base) {
		return time.Time{}, fmt.Errorf("%w: UTCTime too short: %q", ErrNonCanonical, s)
	}
	layout, rest := base, s[len(base):]
	layout += "05"
	if len(rest) < 2 {
		return time.Time{}, fmt.Errorf("%w: UTCTime missing seconds/zone: %q", ErrNonCanonical, s)
	}
	var t time.Time
	var err error
	switch {
	case rest == "Z" || (len(rest) == 3 && rest[2] == 'Z'):
		t, err = time.ParseInLocation(layout+"Z", s, time.UTC)
	default:
		t, err = time.Parse(layout+"-0700", s)
	}
	if err != nil {
		// fall back without seconds (rare, some CAs omit them)
		t, err = time.Parse(base+"Z0700", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrNonCanonical, err)
		}
	}
	year := t.Year() % 100
	var full int
	if year < 50 {
		full = 2000 + year
	} else {
		full = 1900 + year
	}
	return time.Date(full, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, t.Location()), nil
}

func parseGeneralizedTime(s string) (time.Time, error) {
	layouts := []string{
		"20060102150405Z0700",
		"20060102150405.999Z0700",
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid GeneralizedTime %q: %v", ErrNonCanonical, s, firstErr)
}

// Explicit unwraps an explicitly-tagged context value [n] EXPLICIT, returning
// the inner element.
func (v Value) Explicit(tagNumber int) (Value, error) {
	want := cbasn1.Tag(tagNumber).ContextSpecific().Constructed()
	if v.Tag != want {
		return Value{}, fmt.Errorf("%w: expected context tag [%d] constructed, got %d", ErrTagMismatch, tagNumber, v.Tag)
	}
	return Decode(v.Bytes)
}

// Implicit re-interprets a context-tagged value's content as the given
// universal tag, for IMPLICIT tagging. The caller supplies whether the
// underlying universal type is constructed (SEQUENCE/SET) or primitive.
func (v Value) Implicit(tagNumber int, constructed bool, universal cbasn1.Tag) (Value, error) {
	want := cbasn1.Tag(tagNumber).ContextSpecific()
	if constructed {
		want = want.Constructed()
	}
	if v.Tag != want {
		return Value{}, fmt.Errorf("%w: expected context tag [%d], got %d", ErrTagMismatch, tagNumber, v.Tag)
	}
	return Value{Tag: universal, FullBytes: retagFullBytes(v.FullBytes, universal, constructed), Bytes: v.Bytes}, nil
}

// IsContextTag reports whether the value carries context-specific class tag
// number n (regardless of constructed bit).
func (v Value) IsContextTag(n int) bool {
	base := cbasn1.Tag(n).ContextSpecific()
	return v.Tag == base || v.Tag == base.Constructed()
}

// TagNumber returns the low-tag-number portion of the value's tag (valid for
// tags < 31, which covers every tag this module uses).
func (v Value) TagNumber() int { return int(v.Tag) & 0x1f }

// retagFullBytes rewrites the single leading identifier octet of a TLV
// encoding, leaving the length and content untouched. This is exactly what
// is required to reinterpret an IMPLICIT [n] value as its underlying
// universal type, since DER's length encoding never depends on the tag.
func retagFullBytes(full []byte, universal cbasn1.Tag, constructed bool) []byte {
	if len(full) == 0 {
		return full
	}
	b := universal
	if constructed {
		b |= 0x20
	}
	out := make([]byte, len(full))
	copy(out, full)
	out[0] = byte(b)
	return out
}

// ReTagSetOf rewrites a SignerInfo's IMPLICIT [0] signedAttrs encoding (or any
// other context-tagged SET) into a UNIVERSAL SET OF (tag 0x31) encoding,
// leaving length and content bytes untouched. This is the exact operation
// spec section 4.4 requires: "the value to hash for signature verification
// is the DER re-encoding of the signed-attrs set with outer tag SET OF
// (0x31), not the IMPLICIT [0] form."
func ReTagSetOf(fullBytes []byte) []byte {
	return retagFullBytes(fullBytes, TagSet, true)
}
