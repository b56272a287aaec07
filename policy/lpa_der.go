package policy

import (
	"fmt"

	"github.com/digitorus/pdfsign/der"
)

// ParseLPADER parses the DER-encoded LPA format named in spec section 6:
//
//	SEQUENCE {
//	  version        INTEGER OPTIONAL,
//	  policyInfos    SEQUENCE OF PolicyInfo,
//	  nextUpdate     GeneralizedTime
//	}
//	PolicyInfo ::= SEQUENCE {
//	  signingPeriod  SEQUENCE { notBefore GeneralizedTime, notAfter GeneralizedTime OPTIONAL },
//	  revocationDate GeneralizedTime OPTIONAL,
//	  policyOid      OBJECT IDENTIFIER,
//	  policyUri      IA5String,
//	  policyDigest   SEQUENCE { digestMethod OBJECT IDENTIFIER, digestValue OCTET STRING }
//	}
func ParseLPADER(data []byte) (*Lpa, error) {
	val, rest, err := der.ReadElement(data)
	if err != nil {
		return nil, fmt.Errorf("lpa: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("lpa: trailing bytes after top-level SEQUENCE")
	}
	top, err := val.Sequence()
	if err != nil {
		return nil, fmt.Errorf("lpa: %w", err)
	}

	lpa := &Lpa{Version: 1}

	peek, ok := top.PeekTag()
	if ok && (der.Value{Tag: peek}).Is(der.TagInteger) {
		verVal, err := top.Next()
		if err != nil {
			return nil, fmt.Errorf("lpa: version: %w", err)
		}
		v, err := verVal.Int()
		if err != nil {
			return nil, fmt.Errorf("lpa: version: %w", err)
		}
		lpa.Version = int(v)
	}

	infosVal, err := top.Next()
	if err != nil {
		return nil, fmt.Errorf("lpa: policyInfos: %w", err)
	}
	infos, err := infosVal.Sequence()
	if err != nil {
		return nil, fmt.Errorf("lpa: policyInfos: %w", err)
	}
	for !infos.Empty() {
		piVal, err := infos.Next()
		if err != nil {
			return nil, fmt.Errorf("lpa: policyInfo: %w", err)
		}
		pi, err := parsePolicyInfoDER(piVal)
		if err != nil {
			return nil, fmt.Errorf("lpa: policyInfo: %w", err)
		}
		lpa.Policies = append(lpa.Policies, pi)
	}

	if !top.Empty() {
		nu, err := top.Next()
		if err != nil {
			return nil, fmt.Errorf("lpa: nextUpdate: %w", err)
		}
		t, err := nu.AnyTime()
		if err != nil {
			return nil, fmt.Errorf("lpa: nextUpdate: %w", err)
		}
		lpa.NextUpdate = t
	}

	return lpa, nil
}

func parsePolicyInfoDER(v der.Value) (PolicyInfo, error) {
	var pi PolicyInfo
	seq, err := v.Sequence()
	if err != nil {
		return pi, err
	}

	periodVal, err := seq.Next()
	if err != nil {
		return pi, fmt.Errorf("signingPeriod: %w", err)
	}
	period, err := periodVal.Sequence()
	if err != nil {
		return pi, fmt.Errorf("signingPeriod: %w", err)
	}
	nb, err := period.Next()
	if err != nil {
		return pi, fmt.Errorf("signingPeriod.notBefore: %w", err)
	}
	pi.SigningNotBefore, err = nb.AnyTime()
	if err != nil {
		return pi, fmt.Errorf("signingPeriod.notBefore: %w", err)
	}
	if !period.Empty() {
		na, err := period.Next()
		if err != nil {
			return pi, fmt.Errorf("signingPeriod.notAfter: %w", err)
		}
		pi.SigningNotAfter, err = na.AnyTime()
		if err != nil {
			return pi, fmt.Errorf("signingPeriod.notAfter: %w", err)
		}
	}

	peek, ok := seq.PeekTag()
	if ok && ((der.Value{Tag: peek}).Is(der.TagUTCTime) || (der.Value{Tag: peek}).Is(der.TagGeneralizedTime)) {
		rd, err := seq.Next()
		if err != nil {
			return pi, fmt.Errorf("revocationDate: %w", err)
		}
		pi.RevocationDate, err = rd.AnyTime()
		if err != nil {
			return pi, fmt.Errorf("revocationDate: %w", err)
		}
	}

	oidVal, err := seq.Next()
	if err != nil {
		return pi, fmt.Errorf("policyOid: %w", err)
	}
	oid, err := oidVal.OID()
	if err != nil {
		return pi, fmt.Errorf("policyOid: %w", err)
	}
	pi.PolicyOID = oid.String()

	uriVal, err := seq.Next()
	if err != nil {
		return pi, fmt.Errorf("policyUri: %w", err)
	}
	pi.PolicyURI, err = uriVal.String()
	if err != nil {
		return pi, fmt.Errorf("policyUri: %w", err)
	}

	digVal, err := seq.Next()
	if err != nil {
		return pi, fmt.Errorf("policyDigest: %w", err)
	}
	digSeq, err := digVal.Sequence()
	if err != nil {
		return pi, fmt.Errorf("policyDigest: %w", err)
	}
	methVal, err := digSeq.Next()
	if err != nil {
		return pi, fmt.Errorf("policyDigest.digestMethod: %w", err)
	}
	methOID, err := methVal.OID()
	if err != nil {
		return pi, fmt.Errorf("policyDigest.digestMethod: %w", err)
	}
	pi.PolicyDigest.AlgOID = methOID.String()
	valVal, err := digSeq.Next()
	if err != nil {
		return pi, fmt.Errorf("policyDigest.digestValue: %w", err)
	}
	pi.PolicyDigest.Value, err = valVal.OctetString()
	if err != nil {
		return pi, fmt.Errorf("policyDigest.digestValue: %w", err)
	}

	return pi, nil
}
