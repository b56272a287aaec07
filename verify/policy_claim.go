package verify

import (
	"github.com/digitorus/pdfsign/cms"
	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/policy"
)

// parseSignaturePolicyClaim decodes the signature-policy-identifier signed
// attribute (SignaturePolicyIdentifier ::= CHOICE { signaturePolicyId,
// signaturePolicyImplied NULL }), per spec section 4.4/4.9.
func parseSignaturePolicyClaim(si cms.SignerInfo) (policy.SignaturePolicyClaim, bool) {
	attr, ok := si.SignedAttr(cms.OIDAttrSignaturePolicyID)
	if !ok || len(attr.Values) == 0 {
		return policy.SignaturePolicyClaim{}, false
	}
	v := attr.Values[0]
	if v.Is(der.TagNull) {
		return policy.SignaturePolicyClaim{}, false
	}

	seq, err := v.Sequence()
	if err != nil {
		return policy.SignaturePolicyClaim{}, false
	}
	oidVal, err := seq.Next()
	if err != nil {
		return policy.SignaturePolicyClaim{}, false
	}
	oid, err := oidVal.OID()
	if err != nil {
		return policy.SignaturePolicyClaim{}, false
	}
	claim := policy.SignaturePolicyClaim{PolicyOID: oid.String()}

	if seq.Empty() {
		return claim, true
	}
	hashVal, err := seq.Next()
	if err != nil {
		return claim, true
	}
	hashSeq, err := hashVal.Sequence()
	if err != nil {
		return claim, true
	}
	algVal, err := hashSeq.Next()
	if err != nil {
		return claim, true
	}
	algSeq, err := algVal.Sequence()
	if err != nil {
		return claim, true
	}
	algOIDVal, err := algSeq.Next()
	if err != nil {
		return claim, true
	}
	algOID, err := algOIDVal.OID()
	if err != nil {
		return claim, true
	}
	digestVal, err := hashSeq.Next()
	if err != nil {
		return claim, true
	}
	digest, err := digestVal.OctetString()
	if err != nil {
		return claim, true
	}
	claim.Digest = &policy.Digest{AlgOID: algOID.String(), Value: digest}
	return claim, true
}
