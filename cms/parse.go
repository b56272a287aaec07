package cms

import (
	"fmt"
	"math/big"

	"github.com/digitorus/pdfsign/der"
	"github.com/digitorus/pdfsign/x509model"
)

// Parse decodes a ContentInfo{contentType, content [0] EXPLICIT SignedData}
// structure, such as the PKCS#7 DER embedded in a PDF's /Contents, or an
// RFC 3161 timestamp token.
func Parse(data []byte) (*SignedData, error) {
	v, err := der.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("cms: %w", err)
	}
	outer, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("cms: contentInfo: %w", err)
	}
	ctVal, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("cms: missing contentType: %w", err)
	}
	contentType, err := ctVal.OID()
	if err != nil {
		return nil, fmt.Errorf("cms: contentType is not an OID: %w", err)
	}
	if !contentType.Equal(OIDSignedData) {
		return nil, fmt.Errorf("cms: unsupported contentType %s", contentType)
	}
	if outer.Empty() {
		return nil, fmt.Errorf("cms: missing content")
	}
	wrapper, err := outer.Next()
	if err != nil {
		return nil, fmt.Errorf("cms: missing content: %w", err)
	}
	sdVal, err := wrapper.Explicit(0)
	if err != nil {
		return nil, fmt.Errorf("cms: content is not [0] EXPLICIT: %w", err)
	}
	sd, err := parseSignedData(sdVal)
	if err != nil {
		return nil, err
	}
	sd.Raw = v.FullBytes
	return sd, nil
}

func parseSignedData(v der.Value) (*SignedData, error) {
	seq, err := v.Sequence()
	if err != nil {
		return nil, fmt.Errorf("signedData: %w", err)
	}
	sd := &SignedData{}

	versionVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("signedData: missing version: %w", err)
	}
	sd.Version, err = versionVal.Int()
	if err != nil {
		return nil, fmt.Errorf("signedData: version: %w", err)
	}

	digestAlgsVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("signedData: missing digestAlgorithms: %w", err)
	}
	digestAlgsReader, err := digestAlgsVal.SetOf()
	if err != nil {
		return nil, fmt.Errorf("signedData: digestAlgorithms: %w", err)
	}
	for !digestAlgsReader.Empty() {
		algVal, err := digestAlgsReader.Next()
		if err != nil {
			return nil, err
		}
		alg, err := parseAlgFromDerValue(algVal)
		if err != nil {
			return nil, fmt.Errorf("signedData: digestAlgorithm: %w", err)
		}
		sd.DigestAlgorithms = append(sd.DigestAlgorithms, alg)
	}

	encapVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("signedData: missing encapContentInfo: %w", err)
	}
	encapSeq, err := encapVal.Sequence()
	if err != nil {
		return nil, fmt.Errorf("signedData: encapContentInfo: %w", err)
	}
	ectVal, err := encapSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("signedData: missing eContentType: %w", err)
	}
	sd.ContentType, err = ectVal.OID()
	if err != nil {
		return nil, fmt.Errorf("signedData: eContentType: %w", err)
	}
	if !encapSeq.Empty() {
		econtentWrapper, err := encapSeq.Next()
		if err != nil {
			return nil, err
		}
		econtentVal, err := econtentWrapper.Explicit(0)
		if err != nil {
			return nil, fmt.Errorf("signedData: eContent: %w", err)
		}
		sd.EContent, err = econtentVal.OctetString()
		if err != nil {
			return nil, fmt.Errorf("signedData: eContent is not an OCTET STRING: %w", err)
		}
	}

	for {
		peek, ok := seq.PeekTag()
		if !ok || !(der.Value{Tag: peek}.IsContextTag(0) || der.Value{Tag: peek}.IsContextTag(1)) {
			break
		}
		if der.Value{Tag: peek}.IsContextTag(0) {
			certsVal, err := seq.Next()
			if err != nil {
				return nil, err
			}
			sd.Certificates, err = parseCertificatesSet(certsVal)
			if err != nil {
				return nil, fmt.Errorf("signedData: certificates: %w", err)
			}
			continue
		}
		crlsVal, err := seq.Next()
		if err != nil {
			return nil, err
		}
		sd.CRLs, err = parseCRLsSet(crlsVal)
		if err != nil {
			return nil, fmt.Errorf("signedData: crls: %w", err)
		}
	}
	if seq.Empty() {
		return sd, nil
	}
	sisVal, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("signedData: missing signerInfos: %w", err)
	}
	sisReader, err := sisVal.SetOf()
	if err != nil {
		return nil, fmt.Errorf("signedData: signerInfos: %w", err)
	}
	for !sisReader.Empty() {
		siVal, err := sisReader.Next()
		if err != nil {
			return nil, err
		}
		si, err := parseSignerInfo(siVal)
		if err != nil {
			return nil, fmt.Errorf("signedData: signerInfo: %w", err)
		}
		sd.SignerInfos = append(sd.SignerInfos, si)
	}
	return sd, nil
}

func parseAlgFromDerValue(v der.Value) (x509model.AlgorithmIdentifier, error) {
	seq, err := v.Sequence()
	if err != nil {
		return x509model.AlgorithmIdentifier{}, err
	}
	oidVal, err := seq.Next()
	if err != nil {
		return x509model.AlgorithmIdentifier{}, err
	}
	oid, err := oidVal.OID()
	if err != nil {
		return x509model.AlgorithmIdentifier{}, err
	}
	var params []byte
	if !seq.Empty() {
		p, err := seq.Next()
		if err == nil {
			params = p.FullBytes
		}
	}
	return x509model.AlgorithmIdentifier{Algorithm: oid, Params: params}, nil
}

func parseCertificatesSet(v der.Value) ([]*x509model.Certificate, error) {
	inner, err := v.Implicit(0, true, der.TagSet)
	if err != nil {
		return nil, err
	}
	reader, err := inner.SetOf()
	if err != nil {
		return nil, err
	}
	var out []*x509model.Certificate
	for !reader.Empty() {
		certVal, err := reader.Next()
		if err != nil {
			return nil, err
		}
		// ExtendedCertificate/attribute-certificate forms are not supported;
		// only the plain Certificate SEQUENCE is expected here.
		cert, err := x509model.ParseCertificate(certVal.FullBytes)
		if err != nil {
			continue
		}
		out = append(out, cert)
	}
	return out, nil
}

func parseCRLsSet(v der.Value) ([]*x509model.CrlFile, error) {
	inner, err := v.Implicit(1, true, der.TagSet)
	if err != nil {
		return nil, err
	}
	reader, err := inner.SetOf()
	if err != nil {
		return nil, err
	}
	var out []*x509model.CrlFile
	for !reader.Empty() {
		crlVal, err := reader.Next()
		if err != nil {
			return nil, err
		}
		crl, err := x509model.ParseCRL(crlVal.FullBytes)
		if err != nil {
			continue
		}
		out = append(out, crl)
	}
	return out, nil
}

func parseSignerInfo(v der.Value) (SignerInfo, error) {
	seq, err := v.Sequence()
	if err != nil {
		return SignerInfo{}, err
	}
	var si SignerInfo

	versionVal, err := seq.Next()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("missing version: %w", err)
	}
	si.Version, err = versionVal.Int()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("version: %w", err)
	}

	sidVal, err := seq.Next()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("missing sid: %w", err)
	}
	si.SID, err = parseSignerIdentifier(sidVal)
	if err != nil {
		return SignerInfo{}, fmt.Errorf("sid: %w", err)
	}

	digestAlgVal, err := seq.Next()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("missing digestAlgorithm: %w", err)
	}
	si.DigestAlgorithm, err = parseAlgFromDerValue(digestAlgVal)
	if err != nil {
		return SignerInfo{}, fmt.Errorf("digestAlgorithm: %w", err)
	}

	next, err := seq.Next()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("missing signatureAlgorithm or signedAttrs: %w", err)
	}
	if next.IsContextTag(0) {
		si.SignedAttrsRaw = next.FullBytes
		setVal, err := next.Implicit(0, true, der.TagSet)
		if err != nil {
			return SignerInfo{}, fmt.Errorf("signedAttrs: %w", err)
		}
		si.SignedAttrs, err = parseAttributeSet(setVal)
		if err != nil {
			return SignerInfo{}, fmt.Errorf("signedAttrs: %w", err)
		}
		next, err = seq.Next()
		if err != nil {
			return SignerInfo{}, fmt.Errorf("missing signatureAlgorithm: %w", err)
		}
	}
	si.SignatureAlgorithm, err = parseAlgFromDerValue(next)
	if err != nil {
		return SignerInfo{}, fmt.Errorf("signatureAlgorithm: %w", err)
	}

	sigVal, err := seq.Next()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("missing signature: %w", err)
	}
	si.Signature, err = sigVal.OctetString()
	if err != nil {
		return SignerInfo{}, fmt.Errorf("signature is not an OCTET STRING: %w", err)
	}

	if !seq.Empty() {
		unsignedVal, err := seq.Next()
		if err != nil {
			return SignerInfo{}, err
		}
		if unsignedVal.IsContextTag(1) {
			setVal, err := unsignedVal.Implicit(1, true, der.TagSet)
			if err != nil {
				return SignerInfo{}, fmt.Errorf("unsignedAttrs: %w", err)
			}
			si.UnsignedAttrs, err = parseAttributeSet(setVal)
			if err != nil {
				return SignerInfo{}, fmt.Errorf("unsignedAttrs: %w", err)
			}
		}
	}

	return si, nil
}

func parseSignerIdentifier(v der.Value) (SignerIdentifier, error) {
	if v.IsContextTag(0) {
		inner, err := v.Implicit(0, false, der.TagOctetString)
		if err != nil {
			return SignerIdentifier{}, err
		}
		ski, err := inner.OctetString()
		if err != nil {
			return SignerIdentifier{}, err
		}
		return SignerIdentifier{SubjectKeyID: ski}, nil
	}
	seq, err := v.Sequence()
	if err != nil {
		return SignerIdentifier{}, fmt.Errorf("issuerAndSerialNumber: %w", err)
	}
	issuerVal, err := seq.Next()
	if err != nil {
		return SignerIdentifier{}, fmt.Errorf("missing issuer: %w", err)
	}
	issuer, err := x509model.ParseName(issuerVal)
	if err != nil {
		return SignerIdentifier{}, fmt.Errorf("issuer: %w", err)
	}
	serialVal, err := seq.Next()
	if err != nil {
		return SignerIdentifier{}, fmt.Errorf("missing serialNumber: %w", err)
	}
	serial, err := serialVal.BigInt()
	if err != nil {
		return SignerIdentifier{}, fmt.Errorf("serialNumber: %w", err)
	}
	return SignerIdentifier{IssuerRDN: &issuer, Serial: serialBytes(serial)}, nil
}

func serialBytes(n *big.Int) []byte { return n.Bytes() }

func parseAttributeSet(v der.Value) ([]Attribute, error) {
	reader, err := v.SetOf()
	if err != nil {
		return nil, err
	}
	var out []Attribute
	for !reader.Empty() {
		attrVal, err := reader.Next()
		if err != nil {
			return nil, err
		}
		attr, err := parseAttribute(attrVal)
		if err != nil {
			return nil, err
		}
		out = append(out, attr)
	}
	return out, nil
}

func parseAttribute(v der.Value) (Attribute, error) {
	seq, err := v.Sequence()
	if err != nil {
		return Attribute{}, err
	}
	typVal, err := seq.Next()
	if err != nil {
		return Attribute{}, fmt.Errorf("missing type: %w", err)
	}
	oid, err := typVal.OID()
	if err != nil {
		return Attribute{}, fmt.Errorf("type is not an OID: %w", err)
	}
	valuesVal, err := seq.Next()
	if err != nil {
		return Attribute{}, fmt.Errorf("missing values: %w", err)
	}
	valuesReader, err := valuesVal.SetOf()
	if err != nil {
		return Attribute{}, fmt.Errorf("values: %w", err)
	}
	values, err := valuesReader.All()
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{Type: oid, Values: values, Raw: v.FullBytes}, nil
}
