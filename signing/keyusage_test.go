package signing

import (
	"crypto/x509"
	"encoding/asn1"
	"testing"
)

func TestKeyUsageWarnings(t *testing.T) {
	tests := []struct {
		name string
		cert *x509.Certificate
		want int
	}{
		{"nil", nil, 0},
		{"no extensions", &x509.Certificate{}, 0},
		{"digital signature", &x509.Certificate{KeyUsage: x509.KeyUsageDigitalSignature}, 0},
		{"non repudiation", &x509.Certificate{KeyUsage: x509.KeyUsageContentCommitment}, 0},
		{"key encipherment only", &x509.Certificate{KeyUsage: x509.KeyUsageKeyEncipherment}, 1},
		{"document signing", &x509.Certificate{
			KeyUsage:           x509.KeyUsageDigitalSignature,
			UnknownExtKeyUsage: []asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 36}},
		}, 0},
		{"email protection", &x509.Certificate{ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection}}, 0},
		{"server auth", &x509.Certificate{ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}, 1},
		{"both wrong", &x509.Certificate{
			KeyUsage:    x509.KeyUsageCertSign,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keyUsageWarnings(tt.cert); len(got) != tt.want {
				t.Errorf("keyUsageWarnings() = %q, want %d warnings", got, tt.want)
			}
		})
	}
}
