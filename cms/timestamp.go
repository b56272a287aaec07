package cms

import (
	"fmt"
	"math/big"
	"time"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/x509model"
)

// MessageImprint is RFC 3161's MessageImprint SEQUENCE{hashAlgorithm,
// hashedMessage}.
type MessageImprint struct {
	HashAlgorithm der.OID
	HashedMessage []byte
}

// TSTInfo is RFC 3161's TSTInfo SEQUENCE, reduced to the fields this module's
// policy/report layers need.
type TSTInfo struct {
	Version        int64
	Policy         der.OID
	MessageImprint MessageImprint
	SerialNumber   *big.Int
	GenTime        time.Time
	Accuracy       *time.Duration
	Ordering       bool
	Nonce          *big.Int
	TSAName        *x509model.Name
}

// ParseTSTInfo decodes the TSTInfo content octets (the eContent of a
// timestamp token's SignedData).
func ParseTSTInfo(data []byte) (*TSTInfo, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tstInfo: %w", err)
	}
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: %w", err)
	}

	tst := &TSTInfo{}

	versionVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: missing version: %w", err)
	}
	tst.Version, err = versionVal.Int()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: version: %w", err)
	}

	policyVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: missing policy: %w", err)
	}
	tst.Policy, err = policyVal.OID()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: policy: %w", err)
	}

	miVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: missing messageImprint: %w", err)
	}
	tst.MessageImprint, err = parseMessageImprint(miVal)
	if err != nil {
		return nil, fmt.Errorf("tstInfo: messageImprint: %w", err)
	}

	serialVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: missing serialNumber: %w", err)
	}
	tst.SerialNumber, err = serialVal.BigInt()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: serialNumber: %w", err)
	}

	genTimeVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: missing genTime: %w", err)
	}
	tst.GenTime, err = genTimeVal.GeneralizedTime()
	if err != nil {
		return nil, fmt.Errorf("tstInfo: genTime: %w", err)
	}

	for !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			return nil, err
		}
		switch {
		case el.Is(der.TagSequence):
			// accuracy SEQUENCE{seconds, millis [0], micros [1]} (best-effort)
			acc, err := parseAccuracy(el)
			if err == nil {
				tst.Accuracy = &acc
			}
		case el.Is(der.TagBoolean):
			tst.Ordering, _ = el.Bool()
		case el.Is(der.TagInteger):
			tst.Nonce, _ = el.BigInt()
		case el.IsContextTag(0):
			// genAccuracy [0] Accuracy, seen in some CAs instead of bare SEQUENCE
			inner, err := el.Implicit(0, true, der.TagSequence)
			if err == nil {
				acc, err := parseAccuracy(inner)
				if err == nil {
					tst.Accuracy = &acc
				}
			}
		case el.IsContextTag(1):
			// tsa [1] GeneralName EXPLICIT
			inner, err := el.Explicit(1)
			if err == nil {
				name, err := x509model.ParseName(inner)
				if err == nil {
					tst.TSAName = &name
				}
			}
		}
	}

	return tst, nil
}

func parseMessageImprint(v der.Value) (MessageImprint, error) {
	seq, err := v.Sequence()
	if err != nil {
		return MessageImprint{}, err
	}
	algVal, err := seq.Next()
	if err != nil {
		return MessageImprint{}, fmt.Errorf("missing hashAlgorithm: %w", err)
	}
	alg, err := parseAlgFromDerValue(algVal)
	if err != nil {
		return MessageImprint{}, fmt.Errorf("hashAlgorithm: %w", err)
	}
	hashVal, err := seq.Next()
	if err != nil {
		return MessageImprint{}, fmt.Errorf("missing hashedMessage: %w", err)
	}
	hashed, err := hashVal.OctetString()
	if err != nil {
		return MessageImprint{}, fmt.Errorf("hashedMessage is not an OCTET STRING: %w", err)
	}
	return MessageImprint{HashAlgorithm: alg.Algorithm, HashedMessage: hashed}, nil
}

func parseAccuracy(v der.Value) (time.Duration, error) {
	seq, err := v.Sequence()
	if err != nil {
		return 0, err
	}
	var total time.Duration
	if !seq.Empty() {
		if peek, ok := seq.PeekTag(); ok && peek == der.TagInteger {
			secVal, err := seq.Next()
			if err == nil {
				n, err := secVal.Int()
				if err == nil {
					total += time.Duration(n) * time.Second
				}
			}
		}
	}
	for !seq.Empty() {
		el, err := seq.Next()
		if err != nil {
			break
		}
		n, err := el.Implicit(el.TagNumber(), false, der.TagInteger)
		if err != nil {
			continue
		}
		v, err := n.Int()
		if err != nil {
			continue
		}
		switch el.TagNumber() {
		case 0:
			total += time.Duration(v) * time.Millisecond
		case 1:
			total += time.Duration(v) * time.Microsecond
		}
	}
	return total, nil
}
