package policy

import (
	"bytes"
	"strings"
	"time"
)

// MatchPolicy evaluates a signature's claimed policy against the LPA and
// (optionally) the ETSI constraints document for that policy, implementing
// spec section 4.9's time check, digest check, and AD-RB v2 SHA-1 ban.
// signingTime is the CMS signing-time (or validation time if absent).
// sigAlgToken/digestOID describe the CMS signature; keyBits is the signer's
// public key size.
func MatchPolicy(lpa *Lpa, claim SignaturePolicyClaim, signingTime time.Time, strict bool, etsi *ETSIConstraints, hasTimestamp bool, sigAlgOID, digestOIDStr string, keyBits int) MatchResult {
	res := MatchResult{Valid: true}

	entry, ok := lpa.Find(claim.PolicyOID)
	if !ok {
		res.Valid = false
		res.Issues = append(res.Issues, Issue{Code: "policy_oid_not_found", Message: "policy OID not found in LPA: " + claim.PolicyOID, Severity: SeverityError})
		return res
	}

	if signingTime.Before(entry.SigningNotBefore) {
		res.Valid = false
		res.Issues = append(res.Issues, Issue{Code: "policy_time_before_validity", Message: "signing time precedes policy validity", Severity: SeverityError})
	}
	if !entry.SigningNotAfter.IsZero() && signingTime.After(entry.SigningNotAfter) {
		res.Valid = false
		res.Issues = append(res.Issues, Issue{Code: "policy_time_after_validity", Message: "signing time follows policy validity", Severity: SeverityError})
	}
	if !entry.RevocationDate.IsZero() && signingTime.After(entry.RevocationDate) {
		res.Valid = false
		res.Issues = append(res.Issues, Issue{Code: "policy_revoked_before_signature_time", Message: "policy was revoked before the signing time", Severity: SeverityError})
	}

	if claim.Digest == nil {
		sev := SeverityWarning
		if strict {
			sev = SeverityError
			res.Valid = false
		}
		res.Issues = append(res.Issues, Issue{Code: "policy_digest_missing", Message: "signature-policy-identifier carries no digest", Severity: sev})
	} else {
		if claim.Digest.AlgOID != entry.PolicyDigest.AlgOID {
			res.Valid = false
			res.Issues = append(res.Issues, Issue{Code: "policy_digest_algorithm_mismatch", Message: "policy digest algorithm differs from LPA", Severity: SeverityError})
		} else if len(claim.Digest.Value) != len(entry.PolicyDigest.Value) {
			res.Valid = false
			res.Issues = append(res.Issues, Issue{Code: "policy_digest_length_mismatch", Message: "policy digest length differs from LPA", Severity: SeverityError})
		} else if !bytes.Equal(claim.Digest.Value, entry.PolicyDigest.Value) {
			res.Valid = false
			res.Issues = append(res.Issues, Issue{Code: "policy_digest_mismatch", Message: "policy digest value differs from LPA", Severity: SeverityError})
		}
	}

	if !lpa.NextUpdate.IsZero() && time.Now().After(lpa.NextUpdate) {
		res.Issues = append(res.Issues, Issue{Code: "lpa_outdated", Message: "LPA next-update has elapsed", Severity: SeverityWarning})
	}

	if IsADRBv2Family(claim.PolicyOID) {
		if digestOIDStr == "1.3.14.3.2.26" {
			res.Valid = false
			res.Issues = append(res.Issues, Issue{Code: "policy_algorithm_not_allowed", Message: "AD-RB v2 policy forbids SHA-1", Severity: SeverityError})
		} else if digestOIDStr != "2.16.840.1.101.3.4.2.1" {
			res.Valid = false
			res.Issues = append(res.Issues, Issue{Code: "policy_algorithm_not_allowed", Message: "AD-RB v2 policy mandates SHA-256", Severity: SeverityError})
		}
	}

	if etsi != nil {
		token := SignatureAlgToken(sigAlgOID, digestOIDStr)
		for _, c := range etsi.AlgConstraints {
			if !strings.EqualFold(c.Token, token) {
				continue
			}
			if keyBits > 0 && keyBits < c.MinKeyLength {
				res.Valid = false
				res.Issues = append(res.Issues, Issue{Code: "policy_key_too_short", Message: "signer key shorter than policy minimum", Severity: SeverityError})
			}
		}
		if etsi.RequiresSignatureTimestamp() && !hasTimestamp {
			res.Valid = false
			res.Issues = append(res.Issues, Issue{Code: "timestamp_missing", Message: "policy mandates a signature timestamp", Severity: SeverityError})
		}
	} else if !hasTimestamp {
		res.Issues = append(res.Issues, Issue{Code: "timestamp_missing", Message: "no RFC 3161 timestamp present", Severity: SeverityWarning})
	}

	return res
}
