// Package policy implements the ICP-Brasil signature policy engine (LPA
// lookup, OID aliasing, ETSI policy-XML constraint enforcement).
package policy

import (
	"math/big"
	"time"
)

// Digest identifies an algorithm OID plus an expected digest value, used for
// both LPA policy digests and the signature's own policy-identifier hash.
type Digest struct {
	AlgOID string
	Value  []byte
}

// PolicyInfo is one normalized LPA entry, per spec section 3.
type PolicyInfo struct {
	PolicyOID       string
	PolicyURI       string
	SigningNotBefore time.Time
	SigningNotAfter  time.Time // zero if absent
	RevocationDate   time.Time // zero if absent
	PolicyDigest     Digest
}

// Lpa is the normalized list of policy authority entries (DER or XML
// sourced), per spec section 3.
type Lpa struct {
	Version    int
	NextUpdate time.Time
	Policies   []PolicyInfo
}

// Find looks up a policy by OID, applying the ICP-Brasil F<->F+-5 family
// aliasing described in spec section 4.9.
func (l *Lpa) Find(oid string) (*PolicyInfo, bool) {
	for i := range l.Policies {
		if l.Policies[i].PolicyOID == oid {
			return &l.Policies[i], true
		}
	}
	if alias, ok := aliasOID(oid); ok {
		for i := range l.Policies {
			if l.Policies[i].PolicyOID == alias {
				return &l.Policies[i], true
			}
		}
	}
	return nil, false
}

// ETSIConstraints is the normalized form of an ETSI signature-policy XML
// document's constraints section, per spec section 4.9.
type ETSIConstraints struct {
	PolicyOID              string
	MandatedSignedQProps   map[string]bool
	MandatedUnsignedQProps map[string]bool
	AlgConstraints         []AlgConstraint
}

// AlgConstraint is one AlgAndLength entry: a normalized signature+digest
// token (e.g. "rsa-sha256") and the minimum public key length it requires.
type AlgConstraint struct {
	Token        string
	MinKeyLength int
}

// RequiresSignatureTimestamp implements the derived rule from spec section 3:
// requires_signature_timestamp := "SignatureTimeStamp" in mandated_unsigned_qprops.
func (c *ETSIConstraints) RequiresSignatureTimestamp() bool {
	return c.MandatedUnsignedQProps["SignatureTimeStamp"]
}

// MatchResult is the outcome of evaluating a signature against its LPA entry
// and (optionally) ETSI constraints, per spec section 4.9.
type MatchResult struct {
	Valid  bool
	Issues []Issue
}

// Issue is a single policy-engine finding with a stable code, per spec
// section 7's Policy taxonomy.
type Issue struct {
	Code     string
	Message  string
	Severity Severity
}

// Severity classifies an Issue as blocking or advisory.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// SignaturePolicyClaim is what the orchestrator extracts from a SignerInfo's
// signature-policy-identifier attribute (spec section 3/4.9): the claimed
// policy OID and, if present, its asserted digest over the policy document.
type SignaturePolicyClaim struct {
	PolicyOID string
	Digest    *Digest
}

// CertSerial is carried alongside a claim purely for reporting; it is not
// interpreted here.
type CertSerial = *big.Int
