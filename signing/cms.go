package signing

import (
	"crypto"
	"encoding/asn1"
	"fmt"
	"log"
	"regexp"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/digitorus/pdfmu/operation"
)

var (
	oidRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
	oidSigningCertificate     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	oidSigningCertificateV2   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
	oidTimeStampToken         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
)

// failurePatterns classify errors of the signing primitive. A nil pointer
// inside pkcs7 is nearly always caused by a digest the key cannot use.
var failurePatterns = []operation.MessagePattern{
	{
		Kind: operation.SigningFailed,
		Expr: regexp.MustCompile(`nil pointer dereference`),
		Args: map[string]any{"reason": "invalid digest algorithm?"},
	},
	{
		Kind: operation.SigningFailed,
		Expr: regexp.MustCompile(`(?s)^(?P<reason>.+)$`),
	},
}

func signingFailure(err error) *operation.Failure {
	if f := operation.Match(err, failurePatterns...); f != nil {
		return f
	}
	return operation.New(operation.SigningFailed, err, operation.A("reason", "unknown error"))
}

// createSignature builds the detached CMS signature over the byte range.
// Panics of the primitive are returned as errors.
func (ctx *signContext) createSignature() (signature []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signing primitive failed: %v", r)
		}
	}()

	signedData, err := pkcs7.NewSignedData(ctx.signedContent())
	if err != nil {
		return nil, fmt.Errorf("new signed data: %w", err)
	}
	signedData.SetDigestAlgorithm(hashOIDs[ctx.hash])

	signingCertificate, err := ctx.createSigningCertificateAttribute()
	if err != nil {
		return nil, fmt.Errorf("signing certificate attribute: %w", err)
	}
	config := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*signingCertificate},
	}
	if !ctx.revocation.Empty() {
		if ctx.params.Standard == CAdES {
			log.Println("Warning: revocation information is not embedded in CAdES signatures.")
		} else {
			config.ExtraSignedAttributes = append(config.ExtraSignedAttributes, pkcs7.Attribute{
				Type:  oidRevocationInfoArchival,
				Value: ctx.revocation,
			})
		}
	}

	cert := ctx.key.Certificate()
	if err := signedData.AddSignerChain(cert, ctx.key.Signer, ctx.key.Chain[1:], config); err != nil {
		return nil, fmt.Errorf("add signer chain: %w", err)
	}

	// PDF needs a detached signature, meaning the content isn't included.
	signedData.Detach()

	if ctx.params.TSA != nil && ctx.params.TSA.URL != "" {
		sd := signedData.GetSignedData()
		token, err := ctx.timestampToken(sd.SignerInfos[0].EncryptedDigest)
		if err != nil {
			return nil, fmt.Errorf("get timestamp: %w", err)
		}
		attr := pkcs7.Attribute{
			Type:  oidTimeStampToken,
			Value: asn1.RawValue{FullBytes: token},
		}
		if err := sd.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{attr}); err != nil {
			return nil, err
		}
	}

	return signedData.Finish()
}

// createSigningCertificateAttribute returns the ESS signing-certificate
// attribute, version 2 unless the digest is SHA-1.
func (ctx *signContext) createSigningCertificateAttribute() (*pkcs7.Attribute, error) {
	h := ctx.hash.New()
	h.Write(ctx.key.Certificate().Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // []ESSCertID, []ESSCertIDv2
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID, ESSCertIDv2
				if ctx.hash != crypto.SHA1 && ctx.hash != crypto.SHA256 { // default SHA-256
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(hashOIDs[ctx.hash])
					})
				}
				b.AddASN1OctetString(h.Sum(nil)) // certHash
			})
		})
	})

	sse, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	attr := &pkcs7.Attribute{
		Type:  oidSigningCertificateV2,
		Value: asn1.RawValue{FullBytes: sse},
	}
	if ctx.hash == crypto.SHA1 {
		attr.Type = oidSigningCertificate
	}
	return attr, nil
}

// parseTimestampToken extracts the token of a time stamp response.
func parseTimestampToken(response []byte) (*timestamp.Timestamp, error) {
	ts, err := timestamp.ParseResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	if _, err := pkcs7.Parse(ts.RawToken); err != nil {
		return nil, fmt.Errorf("parse timestamp token: %w", err)
	}
	return ts, nil
}
