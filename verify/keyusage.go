package verify

import (
	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/x509model"
)

// documentSigningEKUs are the Extended Key Usage purposes accepted for PDF
// signing: Document Signing (RFC 9336) plus the common real-world
// alternatives certificate authorities issue instead.
var documentSigningEKUs = []der.OID{
	x509model.OIDEKUDocumentSigning,
	x509model.OIDEKUEmailProtection,
	x509model.OIDEKUClientAuth,
}

// validateKeyUsage checks the signer certificate's KeyUsage/ExtKeyUsage
// extensions against a conservative default policy: Digital Signature (or
// Non-Repudiation/contentCommitment) set, and a document-signing-shaped EKU
// present when the extension exists at all (an absent EKU extension imposes
// no restriction, per RFC 5280's "if this extension is not present" rule).
func validateKeyUsage(cert *x509model.Certificate) (kuValid bool, kuError string, ekuValid bool, ekuError string) {
	kuValid = true
	if ku, ok := cert.Extensions.KeyUsage(); ok {
		if !ku.Has(x509model.KeyUsageDigitalSignature) && !ku.Has(x509model.KeyUsageNonRepudiation) {
			kuValid = false
			kuError = "certificate has neither Digital Signature nor Non-Repudiation key usage"
		}
	}

	ekus, present := cert.Extensions.ExtendedKeyUsage()
	if !present {
		ekuValid = true
		return
	}

	for _, e := range ekus {
		if e.Equal(x509model.OIDEKUAny) {
			ekuValid = true
			return
		}
		for _, allowed := range documentSigningEKUs {
			if e.Equal(allowed) {
				ekuValid = true
				return
			}
		}
	}

	ekuValid = false
	ekuError = "certificate does not carry a document-signing-suitable Extended Key Usage"
	return
}
