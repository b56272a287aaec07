package verify

import (
	"github.com/digitorus/pdfsign/cms"
	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/revocation"
)

// extractRevocationInfo collects the embedded revocation evidence available
// for a SignerInfo: the SignedData's own CRLs set, plus a CAdES
// revocation-values unsigned attribute when present (RFC 5126
// id-aa-ets-revocationValues), per spec section 4.7's "revocation info
// archival" container.
func extractRevocationInfo(sd *cms.SignedData, si cms.SignerInfo) revocation.InfoArchival {
	var info revocation.InfoArchival

	for _, crl := range sd.CRLs {
		info.CRL = append(info.CRL, crl.Raw)
	}

	attr, ok := si.UnsignedAttr(cms.OIDAttrRevocationValues)
	if !ok || len(attr.Values) == 0 {
		return info
	}
	seq, err := attr.Values[0].Sequence()
	if err != nil {
		return info
	}
	for !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			break
		}
		switch {
		case el.IsContextTag(0): // crlVals [0]
			inner, err := el.Implicit(0, true, der.TagSequence)
			if err != nil {
				continue
			}
			crlSeq, err := inner.Sequence()
			if err != nil {
				continue
			}
			for !crlSeq.Empty() {
				c, err := crlSeq.Next()
				if err != nil {
					break
				}
				info.CRL = append(info.CRL, c.FullBytes)
			}
		case el.IsContextTag(1): // ocspVals [1]
			inner, err := el.Implicit(1, true, der.TagSequence)
			if err != nil {
				continue
			}
			ocspSeq, err := inner.Sequence()
			if err != nil {
				continue
			}
			for !ocspSeq.Empty() {
				o, err := ocspSeq.Next()
				if err != nil {
					break
				}
				// bare BasicOCSPResponse, not the OCSPResponse envelope;
				// checkCertificateRevocation tries both forms via revInfo.Other.
				info.Other = append(info.Other, o.FullBytes)
			}
		}
	}
	return info
}
