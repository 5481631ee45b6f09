package signing

import (
	"crypto/x509"
	"encoding/asn1"
)

// oidDocumentSigning is the Document Signing extended key usage of RFC 9336.
var oidDocumentSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 36}

// signingEKUs are accepted as alternatives to Document Signing.
var signingEKUs = []x509.ExtKeyUsage{
	x509.ExtKeyUsageAny,
	x509.ExtKeyUsageEmailProtection,
	x509.ExtKeyUsageClientAuth,
}

// keyUsageWarnings describes why cert is a poor fit for document signing.
// Signing proceeds regardless.
func keyUsageWarnings(cert *x509.Certificate) []string {
	if cert == nil {
		return nil
	}
	var warnings []string

	// A certificate without the extension may be used for anything.
	if cert.KeyUsage != 0 && cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		warnings = append(warnings, "the signing certificate has neither Digital Signature nor Non-Repudiation key usage")
	}

	if len(cert.ExtKeyUsage) == 0 && len(cert.UnknownExtKeyUsage) == 0 {
		return warnings
	}
	for _, oid := range cert.UnknownExtKeyUsage {
		if oid.Equal(oidDocumentSigning) {
			return warnings
		}
	}
	for _, eku := range cert.ExtKeyUsage {
		for _, allowed := range signingEKUs {
			if eku == allowed {
				return warnings
			}
		}
	}
	return append(warnings, "the signing certificate has no Extended Key Usage suitable for document signing")
}
