// Package testpki creates throw-away certificate hierarchies and keystores
// for tests.
package testpki

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"
	"golang.org/x/crypto/ocsp"
	"software.sslmate.com/src/go-pkcs12"
)

// KeyProfile selects the key algorithm and size.
type KeyProfile string

const (
	RSA_2048   KeyProfile = "RSA_2048"
	RSA_3072   KeyProfile = "RSA_3072"
	ECDSA_P256 KeyProfile = "ECDSA_P256"
	ECDSA_P384 KeyProfile = "ECDSA_P384"
)

// Config of a test hierarchy.
type Config struct {
	Profile         KeyProfile
	IntermediateCAs int
}

// PKI is a root CA with an optional chain of intermediates and an HTTP
// server answering OCSP and CRL requests.
type PKI struct {
	T                 testing.TB
	Profile           KeyProfile
	RootKey           crypto.Signer
	RootCert          *x509.Certificate
	IntermediateKeys  []crypto.Signer
	IntermediateCerts []*x509.Certificate

	Server       *httptest.Server
	CRLBytes     []byte
	CRLRequests  int
	OCSPRequests int
	FailOCSP     bool
}

// Identity is an issued leaf with its key and the chain up to the root.
type Identity struct {
	Key   crypto.Signer
	Cert  *x509.Certificate
	Chain []*x509.Certificate
}

// New creates an RSA hierarchy with one intermediate CA.
func New(t testing.TB) *PKI {
	return NewWithConfig(t, Config{Profile: RSA_2048, IntermediateCAs: 1})
}

// NewWithConfig creates a hierarchy as described by config.
func NewWithConfig(t testing.TB, config Config) *PKI {
	t.Helper()
	p := &PKI{T: t, Profile: config.Profile}

	p.RootKey = GenerateKey(t, config.Profile)
	p.RootCert = p.createCA(1, "pdfmu Test Root CA", p.RootKey, nil, nil, []byte{1, 2, 3, 4})

	parentKey, parentCert := p.RootKey, p.RootCert
	for i := 0; i < config.IntermediateCAs; i++ {
		key := GenerateKey(t, config.Profile)
		cert := p.createCA(int64(i+2), fmt.Sprintf("pdfmu Test Intermediate CA %d", i+1), key, parentCert, parentKey, []byte{5, 6, 7, 8, byte(i)})
		p.IntermediateKeys = append(p.IntermediateKeys, key)
		p.IntermediateCerts = append(p.IntermediateCerts, cert)
		parentKey, parentCert = key, cert
	}
	return p
}

func (p *PKI) createCA(serial int64, name string, key crypto.Signer, parent *x509.Certificate, parentKey crypto.Signer, skid []byte) *x509.Certificate {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:   name,
			Organization: []string{"pdfmu Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          skid,
	}
	if parent == nil {
		parent, parentKey = template, key
	} else {
		template.AuthorityKeyId = parent.SubjectKeyId
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	if err != nil {
		p.T.Fatalf("failed to create CA certificate %q: %v", name, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		p.T.Fatalf("failed to parse CA certificate %q: %v", name, err)
	}
	return cert
}

func (p *PKI) issuer() (*x509.Certificate, crypto.Signer) {
	if n := len(p.IntermediateCerts); n > 0 {
		return p.IntermediateCerts[n-1], p.IntermediateKeys[n-1]
	}
	return p.RootCert, p.RootKey
}

// Chain returns the CA certificates from the issuing CA up to the root.
func (p *PKI) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i := len(p.IntermediateCerts) - 1; i >= 0; i-- {
		chain = append(chain, p.IntermediateCerts[i])
	}
	return append(chain, p.RootCert)
}

// IssueLeaf issues a signing certificate. When the server is running the
// certificate points to its OCSP and CRL endpoints.
func (p *PKI) IssueLeaf(commonName string) *Identity {
	p.T.Helper()
	key := GenerateKey(p.T, p.Profile)

	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"pdfmu Test Org"},
		},
		NotBefore:          time.Now().Add(-1 * time.Hour),
		NotAfter:           time.Now().Add(1 * time.Hour),
		KeyUsage:           x509.KeyUsageDigitalSignature,
		UnknownExtKeyUsage: []asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 36}},
	}
	if p.Server != nil {
		template.CRLDistributionPoints = []string{p.Server.URL + "/crl"}
		template.OCSPServer = []string{p.Server.URL + "/ocsp"}
		template.IssuingCertificateURL = []string{p.Server.URL + "/ca"}
	}

	issuerCert, issuerKey := p.issuer()
	der, err := x509.CreateCertificate(rand.Reader, template, issuerCert, key.Public(), issuerKey)
	if err != nil {
		p.T.Fatalf("failed to issue leaf certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		p.T.Fatalf("failed to parse leaf certificate: %v", err)
	}

	return &Identity{
		Key:   key,
		Cert:  cert,
		Chain: append([]*x509.Certificate{cert}, p.Chain()...),
	}
}

// StartServer generates a CRL and serves it together with OCSP responses
// and the issuing CA certificate.
func (p *PKI) StartServer() {
	issuerCert, issuerKey := p.issuer()

	crl, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: []x509.RevocationListEntry{
			{SerialNumber: big.NewInt(9999), RevocationTime: time.Now()},
		},
	}, issuerCert, issuerKey)
	if err != nil {
		p.T.Fatalf("failed to create CRL: %v", err)
	}
	p.CRLBytes = crl

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/crl":
			p.CRLRequests++
			w.Header().Set("Content-Type", "application/pkix-crl")
			_, _ = w.Write(p.CRLBytes)
		case strings.HasPrefix(r.URL.Path, "/ocsp"):
			p.OCSPRequests++
			p.serveOCSP(w, r)
		case r.URL.Path == "/ca":
			w.Header().Set("Content-Type", "application/x-x509-ca-cert")
			_, _ = w.Write(issuerCert.Raw)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func (p *PKI) serveOCSP(w http.ResponseWriter, r *http.Request) {
	if p.FailOCSP {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var der []byte
	var err error
	if r.Method == http.MethodPost {
		var b bytes.Buffer
		_, err = b.ReadFrom(r.Body)
		der = b.Bytes()
	} else {
		parts := strings.Split(r.URL.Path, "/")
		der, err = base64.StdEncoding.DecodeString(parts[len(parts)-1])
	}
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	req, err := ocsp.ParseRequest(der)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	issuerCert, issuerKey := p.issuer()
	now := time.Now()
	resp, err := ocsp.CreateResponse(issuerCert, issuerCert, ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: req.SerialNumber,
		ThisUpdate:   now.Add(-1 * time.Hour),
		NextUpdate:   now.Add(24 * time.Hour),
	}, issuerKey)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/ocsp-response")
	_, _ = w.Write(resp)
}

// Close stops the server.
func (p *PKI) Close() {
	if p.Server != nil {
		p.Server.Close()
	}
}

// WritePKCS12 stores the identity in a PKCS#12 file.
func (id *Identity) WritePKCS12(t testing.TB, path, password string) {
	t.Helper()
	data, err := pkcs12.Modern.Encode(id.Key, id.Cert, id.Chain[1:], password)
	if err != nil {
		t.Fatalf("failed to encode PKCS#12: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write PKCS#12: %v", err)
	}
}

// JKSEntry is one alias of a Java keystore. Entries without an identity
// are stored as trusted certificates.
type JKSEntry struct {
	Alias    string
	Identity *Identity
	Cert     *x509.Certificate
	Password string
}

// WriteJKS stores the entries in a Java keystore file.
func WriteJKS(t testing.TB, path, password string, entries ...JKSEntry) {
	t.Helper()
	ks := keystore.New()
	created := time.Now()

	for _, e := range entries {
		if e.Identity == nil {
			err := ks.SetTrustedCertificateEntry(e.Alias, keystore.TrustedCertificateEntry{
				CreationTime: created,
				Certificate:  keystore.Certificate{Type: "X509", Content: e.Cert.Raw},
			})
			if err != nil {
				t.Fatalf("failed to add certificate %q: %v", e.Alias, err)
			}
			continue
		}

		der, err := x509.MarshalPKCS8PrivateKey(e.Identity.Key)
		if err != nil {
			t.Fatalf("failed to marshal key %q: %v", e.Alias, err)
		}
		var chain []keystore.Certificate
		for _, c := range e.Identity.Chain {
			chain = append(chain, keystore.Certificate{Type: "X509", Content: c.Raw})
		}
		keyPassword := e.Password
		if keyPassword == "" {
			keyPassword = password
		}
		err = ks.SetPrivateKeyEntry(e.Alias, keystore.PrivateKeyEntry{
			CreationTime:     created,
			PrivateKey:       der,
			CertificateChain: chain,
		}, []byte(keyPassword))
		if err != nil {
			t.Fatalf("failed to add key %q: %v", e.Alias, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}
	defer f.Close()
	if err := ks.Store(f, []byte(password)); err != nil {
		t.Fatalf("failed to store keystore: %v", err)
	}
}

// GenerateKey creates a key for profile.
func GenerateKey(t testing.TB, profile KeyProfile) crypto.Signer {
	t.Helper()
	var (
		key crypto.Signer
		err error
	)
	switch profile {
	case RSA_2048:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case RSA_3072:
		key, err = rsa.GenerateKey(rand.Reader, 3072)
	case ECDSA_P256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case ECDSA_P384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		t.Fatalf("unknown key profile: %s", profile)
	}
	if err != nil {
		t.Fatalf("failed to generate %s key: %v", profile, err)
	}
	return key
}
