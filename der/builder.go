package der

import (
	encasn1 "encoding/asn1"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Builder accumulates a DER encoding. It is a thin, typed façade over
// cryptobyte.Builder, matching the idiom the teacher already uses directly
// in sign/pdfsignature.go (createSigningCertificateAttribute) for
// hand-constructing ASN.1 attributes.
type Builder struct {
	b *cryptobyte.Builder
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{b: &cryptobyte.Builder{}} }

// Bytes returns the accumulated DER encoding.
func (b *Builder) Bytes() ([]byte, error) { return b.b.Bytes() }

// AddSequence appends a SEQUENCE whose content is built by fn.
func (b *Builder) AddSequence(fn func(*Builder)) {
	b.b.AddASN1(cbasn1.SEQUENCE, func(inner *cryptobyte.Builder) {
		fn(&Builder{b: inner})
	})
}

// AddSetOfDER appends a SET OF built from already-encoded DER elements,
// sorted into DER canonical order (ascending lexicographic order of each
// element's full encoding). Per spec section 4.1, canonical SET OF ordering
// is only required when constructing signed attributes, so callers that
// already hold a DER-canonical input (e.g. re-tagging an existing
// signed-attrs set) should use ReTagSetOf instead of this constructor.
func AddSetOfDER(elements [][]byte) []byte {
	sorted := make([][]byte, len(elements))
	copy(sorted, elements)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && lessDER(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	var buf []byte
	for _, e := range sorted {
		buf = append(buf, e...)
	}
	var bld cryptobyte.Builder
	bld.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
		b.AddBytes(buf)
	})
	out, _ := bld.Bytes()
	return out
}

func lessDER(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// AddOID appends an OBJECT IDENTIFIER.
func (b *Builder) AddOID(oid OID) {
	arcs := make(encasn1.ObjectIdentifier, len(oid))
	for i, a := range oid {
		arcs[i] = int(a)
	}
	b.b.AddASN1ObjectIdentifier(arcs)
}

// AddInt appends an INTEGER from an int64.
func (b *Builder) AddInt(v int64) { b.b.AddASN1Int64(v) }

// AddBigInt appends an INTEGER from a *big.Int.
func (b *Builder) AddBigInt(v *big.Int) { b.b.AddASN1BigInt(v) }

// AddOctetString appends an OCTET STRING.
func (b *Builder) AddOctetString(v []byte) { b.b.AddASN1OctetString(v) }

// AddBool appends a BOOLEAN.
func (b *Builder) AddBool(v bool) { b.b.AddASN1Boolean(v) }

// AddNull appends a NULL.
func (b *Builder) AddNull() { b.b.AddASN1NULL() }

// AddRaw appends an already-encoded element verbatim.
func (b *Builder) AddRaw(der []byte) { b.b.AddBytes(der) }

// AddGeneralizedTime appends a GeneralizedTime in UTC.
func (b *Builder) AddGeneralizedTime(t time.Time) {
	b.b.AddASN1GeneralizedTime(t.UTC())
}

// AddExplicit wraps the content built by fn in an explicit context tag [n].
func (b *Builder) AddExplicit(tagNumber int, fn func(*Builder)) {
	b.b.AddASN1(cbasn1.Tag(tagNumber).ContextSpecific().Constructed(), func(inner *cryptobyte.Builder) {
		fn(&Builder{b: inner})
	})
}
