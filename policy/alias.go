package policy

import (
	"strconv"
	"strings"
)

// icpBrasilPrefix is the ICP-Brasil signature-policy arc named in spec
// section 4.9: "2.16.76.1.7.1.F.tail" where F in [1,10].
const icpBrasilPrefix = "2.16.76.1.7.1."

// aliasOID implements the F <-> F+-5 family aliasing: for F in [1,5] also try
// F+5, for F in [6,10] also try F-5. This lets an AD-RB policy OID match an
// LPA entry published under its AD-RT sibling family (or vice versa).
func aliasOID(oid string) (string, bool) {
	if !strings.HasPrefix(oid, icpBrasilPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(oid, icpBrasilPrefix)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) == 0 {
		return "", false
	}
	f, err := strconv.Atoi(parts[0])
	if err != nil || f < 1 || f > 10 {
		return "", false
	}

	var aliasF int
	switch {
	case f <= 5:
		aliasF = f + 5
	default:
		aliasF = f - 5
	}

	tail := ""
	if len(parts) == 2 {
		tail = "." + parts[1]
	}
	return icpBrasilPrefix + strconv.Itoa(aliasF) + tail, true
}

// IsADRBv2Family reports whether oid is in the AD-RB v2 families that spec
// section 4.9 singles out for mandatory SHA-256 / banned SHA-1:
// 2.16.76.1.7.1.1.2.* and 2.16.76.1.7.1.6.2.*.
func IsADRBv2Family(oid string) bool {
	return strings.HasPrefix(oid, icpBrasilPrefix+"1.2.") ||
		strings.HasPrefix(oid, icpBrasilPrefix+"6.2.")
}
