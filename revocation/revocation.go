// Package revocation collects OCSP responses and CRLs for embedding in a
// signature as the Adobe revocation information attribute.
package revocation

import (
	"crypto/x509"
	"encoding/asn1"
)

// InfoArchival is the adbe-revocationInfoArchival attribute value holding
// the revocation information of the signing chain.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// CRL contains the raw bytes of certificate revocation lists.
type CRL []asn1.RawValue

// OCSP contains the raw bytes of OCSP responses.
type OCSP []asn1.RawValue

// Other is OtherRevInfo.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// AddCRL embeds the DER bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP embeds the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// Empty reports whether nothing was collected.
func (r *InfoArchival) Empty() bool {
	return len(r.CRL) == 0 && len(r.OCSP) == 0
}

// Size returns the number of embedded bytes, used to size the signature
// reservation.
func (r *InfoArchival) Size() int {
	n := 0
	for _, crl := range r.CRL {
		n += len(crl.FullBytes)
	}
	for _, resp := range r.OCSP {
		n += len(resp.FullBytes)
	}
	return n
}

// Collect calls fn for every certificate of chain with its issuer. The last
// certificate is passed without issuer.
func Collect(fn Function, chain []*x509.Certificate, info *InfoArchival) error {
	for i, cert := range chain {
		var issuer *x509.Certificate
		if i < len(chain)-1 {
			issuer = chain[i+1]
		}
		if err := fn(cert, issuer, info); err != nil {
			return err
		}
	}
	return nil
}
