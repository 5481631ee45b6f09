package signing

import (
	"crypto"
	"encoding/asn1"
	"strings"
	"time"

	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/revocation"
)

// Standard selects the signature format.
type Standard int

const (
	// CMS is a PKCS#7 detached signature (/adbe.pkcs7.detached).
	CMS Standard = iota
	// CAdES is a CAdES detached signature (/ETSI.CAdES.detached).
	CAdES
)

func (s Standard) String() string {
	if s == CAdES {
		return "cades"
	}
	return "cms"
}

// SubFilter returns the signature dictionary /SubFilter value.
func (s Standard) SubFilter() string {
	if s == CAdES {
		return "ETSI.CAdES.detached"
	}
	return "adbe.pkcs7.detached"
}

// ParseStandard parses "cms" or "cades".
func ParseStandard(name string) (Standard, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cms", "pkcs7":
		return CMS, nil
	case "cades":
		return CAdES, nil
	}
	return CMS, operation.New(operation.ArgumentsInvalid, nil, operation.A("reason", "unknown signature standard "+name))
}

// CertificationLevel controls the DocMDP permissions of a certification
// signature.
type CertificationLevel int

const (
	NotCertified CertificationLevel = iota
	// NoChanges allows no changes after signing.
	NoChanges
	// FormFilling allows filling forms and signing.
	FormFilling
	// FormFillingAndAnnotations also allows annotations.
	FormFillingAndAnnotations
)

var certificationLevels = []string{
	NotCertified:              "not-certified",
	NoChanges:                 "no-changes",
	FormFilling:               "form-filling",
	FormFillingAndAnnotations: "form-filling-and-annotations",
}

func (l CertificationLevel) String() string {
	if l < NotCertified || l > FormFillingAndAnnotations {
		return "unknown"
	}
	return certificationLevels[l]
}

// ParseCertificationLevel parses a level name such as "form-filling".
func ParseCertificationLevel(name string) (CertificationLevel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NotCertified, nil
	}
	for i, n := range certificationLevels {
		if n == name {
			return CertificationLevel(i), nil
		}
	}
	return NotCertified, operation.New(operation.ArgumentsInvalid, nil, operation.A("reason", "unknown certification level "+name))
}

// Appearance holds the optional descriptive entries of the signature.
type Appearance struct {
	Name     string
	Reason   string
	Location string
	Contact  string
	// Date of signing. Zero means the provider clock.
	Date               time.Time
	CertificationLevel CertificationLevel
}

// TSA describes an RFC 3161 time stamping authority.
type TSA struct {
	URL      string
	Username string
	Password string
}

// Parameters of one signature.
type Parameters struct {
	DigestAlgorithm string
	Standard        Standard
	Appearance      Appearance
	// TSA adds a signature time stamp when set.
	TSA *TSA
	// Revocation collects revocation information for the chain when set.
	Revocation revocation.Function
}

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   asn1.ObjectIdentifier([]int{1, 3, 14, 3, 2, 26}),
	crypto.SHA256: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 1}),
	crypto.SHA384: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 2}),
	crypto.SHA512: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 3}),
}

var digestNames = map[string]crypto.Hash{
	"SHA1":   crypto.SHA1,
	"SHA256": crypto.SHA256,
	"SHA384": crypto.SHA384,
	"SHA512": crypto.SHA512,
}

// DefaultDigest is used when no digest algorithm is named.
const DefaultDigest = "SHA256"

// ParseDigest validates a digest algorithm name such as "SHA256" or
// "sha-512". An empty name selects DefaultDigest.
func ParseDigest(name string) (crypto.Hash, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", ""))
	if normalized == "" {
		normalized = DefaultDigest
	}
	if h, ok := digestNames[normalized]; ok {
		return h, nil
	}
	return 0, operation.New(operation.DigestAlgorithmUnsupported, nil, operation.A("digestAlgorithm", name))
}
