package verify

import (
	"bytes"

	"github.com/digitorus/pdf"
)

// findDocMDP locates the signature dictionary matching slot's ByteRange and
// reports its DocMDP transform permission, per spec section 4.10 step 9 /
// section 8's DocMDP scenario. Adapted from the teacher's checkDocMDP:
// instead of mutating a Signer in place it returns the permission level for
// the caller to attach to a ValidationReport.
func findDocMDP(data []byte, slot SignatureSlot) DocMDPStatus {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return DocMDPStatus{}
	}

	for _, x := range rdr.Xref() {
		v := rdr.Resolve(x.Ptr(), x.Ptr())
		if v.Key("Filter").Name() != "Adobe.PPKLite" {
			continue
		}
		br := v.Key("ByteRange")
		if br.Len() != 4 {
			continue
		}
		var got [4]int64
		for i := 0; i < 4; i++ {
			got[i] = br.Index(i).Int64()
		}
		if got != slot.ByteRange {
			continue
		}

		refs := v.Key("Reference")
		if refs.IsNull() || refs.Kind() != pdf.Array {
			return DocMDPStatus{}
		}
		for i := 0; i < refs.Len(); i++ {
			ref := refs.Index(i)
			if ref.Key("TransformMethod").Name() != "DocMDP" {
				continue
			}
			perm := 2 // default per ISO 32000-2 Table 257
			params := ref.Key("TransformParams")
			if !params.IsNull() {
				if p := params.Key("P"); !p.IsNull() {
					perm = int(p.Int64())
				}
			}
			return DocMDPStatus{Present: true, Permission: perm}
		}
		return DocMDPStatus{}
	}
	return DocMDPStatus{}
}

