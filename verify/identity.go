package verify

import (
	"fmt"
	"strings"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/x509model"
)

// ICP-Brasil otherName OIDs carrying CPF/date-of-birth inside the person
// physical-certificate SAN. 2.16.76.1.3.5 (voter ID) is deliberately absent:
// it never contributes a date of birth, per spec section 3.
var (
	oidICPBrasilPF1 = der.OIDFromInts(2, 16, 76, 1, 3, 1)
	oidICPBrasilPF4 = der.OIDFromInts(2, 16, 76, 1, 3, 4)
)

// buildSignerIdentity extracts the SignerInfo(report) shape from spec section
// 3: subject/issuer DN, CN, serial (hex+decimal), CPF and date-of-birth.
func buildSignerIdentity(cert *x509model.Certificate, issuer *x509model.Certificate) SignerIdentity {
	id := SignerIdentity{
		SubjectDN:  cert.Subject.String(),
		IssuerDN:   cert.Issuer.String(),
		CommonName: cert.Subject.CommonName(),
	}
	if issuer != nil {
		id.IssuerDN = issuer.Subject.String()
	}
	if cert.SerialRaw != nil {
		id.SerialHex = fmt.Sprintf("%X", cert.SerialRaw.Bytes())
		id.SerialDec = cert.SerialRaw.String()
	}

	if cpf, ok := cert.Subject.Get(x509model.OIDSerialNumber); ok {
		id.CPF = cpf
	}

	if others, ok := cert.Extensions.SubjectAltNameOtherNames(); ok {
		for _, o := range others {
			if !o.TypeID.Equal(oidICPBrasilPF1) && !o.TypeID.Equal(oidICPBrasilPF4) {
				continue
			}
			dob, cpf := parseDOBCPF(o.Value)
			if id.CPF == "" {
				id.CPF = cpf
			}
			if dob != "" {
				id.DateOfBirth = dob
			}
		}
	}

	if id.CPF == "" {
		id.CPF = id.CommonName
	}

	return id
}

// parseDOBCPF decomposes the 19-digit prefix of an ICP-Brasil PF otherName
// value into DDMMAAAA (date of birth) and the 11-digit CPF, per spec section
// 8's "parse_dob_cpf" property. An all-zero date yields no date of birth.
func parseDOBCPF(value string) (dob, cpf string) {
	digits := onlyDigits(value)
	if len(digits) < 19 {
		return "", ""
	}
	datePart := digits[:8]
	cpfPart := digits[8:19]
	if datePart != "00000000" {
		dob = datePart
	}
	cpf = cpfPart
	return
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
