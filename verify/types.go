package verify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/digitorus/pdfsign/policy"
	"github.com/digitorus/pdfsign/revocation"
	"github.com/digitorus/pdfsign/x509model"
)

// VerifyOptions configures a validation run, per spec section 1/4.10.
type VerifyOptions struct {
	// Time is the validation instant. Zero means "use the CMS signing-time
	// attribute if present, else time.Now()".
	Time time.Time

	// Strict turns advisory findings (unknown revocation, missing policy
	// digest, absent timestamp) into hard failures, per spec section 4.7/4.9.
	Strict bool

	// AllowUntrustedRoots reports ChainTrusted=false instead of failing the
	// whole signature when no trust anchor is reached.
	AllowUntrustedRoots bool

	// EnableExternalRevocationCheck allows the orchestrator to call Fetcher
	// for CRL/OCSP lookups beyond what is embedded in the CMS.
	EnableExternalRevocationCheck bool

	// ValidateTimestampCertificates also chain-builds the RFC 3161 TSA's own
	// certificate when a signature-time-stamp-token is present.
	ValidateTimestampCertificates bool

	TrustRoots revocation.TrustRootsProvider
	Fetcher    revocation.Fetcher

	// LPA is the policy authority listing used to resolve a signature's
	// claimed policy OID, per spec section 4.9. Nil disables policy checks.
	LPA *policy.Lpa

	// PolicyXMLByOID carries the optional ETSI signature-policy XML
	// constraints document for a given policy OID (spec section 8 scenario
	// 3's "policy_xml_by_oid").
	PolicyXMLByOID map[string]*policy.ETSIConstraints

	RevocationSkew time.Duration // default 5 minutes, per spec section 4.7

	Context context.Context

	// Logger receives structured diagnostics as the orchestrator walks the
	// document and each signature. Nil disables logging.
	Logger *zap.Logger
}

func (o VerifyOptions) skew() time.Duration {
	if o.RevocationSkew == 0 {
		return 5 * time.Minute
	}
	return o.RevocationSkew
}

func (o VerifyOptions) ctx() context.Context {
	if o.Context != nil {
		return o.Context
	}
	return context.Background()
}

func (o VerifyOptions) log() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// Issue is a structured finding attached to a ValidationReport, per spec
// section 3/7.
type Issue struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// TimestampStatus reports the outcome of validating an embedded RFC 3161
// token, per spec section 4.10 step 8.
type TimestampStatus struct {
	Present bool
	Valid   bool
	Time    time.Time
}

// RevocationStatus mirrors revocation.Result for report purposes.
type RevocationStatus struct {
	Status revocation.Status
	Source revocation.Source
}

// SignerIdentity is the SignerInfo(report) shape from spec section 3.
type SignerIdentity struct {
	SubjectDN   string
	IssuerDN    string
	CommonName  string
	SerialHex   string
	SerialDec   string
	CPF         string
	DateOfBirth string // DDMMAAAA, empty if absent
}

// DocMDPStatus reports the DocMDP permission level from the signature
// dictionary's /Reference TransformParams, per spec section 4.10 step 9.
type DocMDPStatus struct {
	Present    bool
	Permission int // 1=no changes, 2=form fill, 3=form fill + annotations
}

// ValidationReport is the per-signature report shape from spec section 3.
type ValidationReport struct {
	FieldName         string
	CoversCurrentFile bool
	DocumentIntact    bool
	CMSValid          bool
	ByteRangeDigestOK bool
	Chain             []*x509model.Certificate
	ChainTrusted      bool
	ChainError        string
	Revocation        RevocationStatus
	PolicyStatus      *policy.MatchResult
	TimestampStatus   TimestampStatus
	DocMDP            DocMDPStatus
	Signer            SignerIdentity
	SigningTime       time.Time
	Issues            []Issue
}

func (r *ValidationReport) addIssue(severity, code, message string) {
	r.Issues = append(r.Issues, Issue{Severity: severity, Code: code, Message: message})
}

// Response is the document-level validation result, per spec section 3/6.
type Response struct {
	Error              string
	DocumentInfo       DocumentInfo
	Signatures         []ValidationReport
	AllDocumentsIntact bool
}
