package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/digitorus/pdfmu/internal/testpki"
	"github.com/digitorus/pdfmu/operation"
)

func ptr(s string) *string { return &s }

func newPKI(t *testing.T) *testpki.PKI {
	return testpki.NewWithConfig(t, testpki.Config{Profile: testpki.ECDSA_P256, IntermediateCAs: 1})
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name, file string
		want       Kind
	}{
		{"JKS", "", JKS},
		{"pkcs12", "", PKCS12},
		{"p12", "", PKCS12},
		{"PKCS11", "", PKCS11},
		{"", "store.jks", JKS},
		{"", "store.pfx", PKCS12},
		{"", "store.bin", PKCS12},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.name, tt.file)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "ParseKind(%q, %q)", tt.name, tt.file)
	}

	_, err := ParseKind("bks", "")
	assert.Equal(t, operation.KeystoreTypeUnsupported, operation.KindOf(err))
	assert.Equal(t, "bks", operation.AsFailure(err).Args["type"])
}

func TestLoadFileErrors(t *testing.T) {
	_, _, err := Load(Options{Kind: "jks"})
	assert.Equal(t, operation.KeystoreFileNotSpecified, operation.KindOf(err))

	missing := filepath.Join(t.TempDir(), "missing.p12")
	_, _, err = Load(Options{Kind: "pkcs12", File: missing, Password: ptr("x")})
	assert.Equal(t, operation.KeystoreFileOpenFailed, operation.KindOf(err))
	assert.Equal(t, missing, operation.AsFailure(err).Args["file"])

	garbage := filepath.Join(t.TempDir(), "garbage.jks")
	require.NoError(t, os.WriteFile(garbage, []byte("not a keystore"), 0o600))
	for _, kind := range []string{"jks", "pkcs12"} {
		_, _, err = Load(Options{Kind: kind, File: garbage, Password: ptr("changeit")})
		assert.Equal(t, operation.KeystoreLoadFailed, operation.KindOf(err), kind)
		assert.Error(t, errorsUnwrap(err), "cause attached")
	}
}

func errorsUnwrap(err error) error {
	if f := operation.AsFailure(err); f != nil {
		return f.Cause
	}
	return nil
}

func TestPKCS12(t *testing.T) {
	pki := newPKI(t)
	id := pki.IssueLeaf("Jane Signer")
	path := filepath.Join(t.TempDir(), "jane.p12")
	id.WritePKCS12(t, path, "secret")

	store, warnings, err := Load(Options{File: path, Password: ptr("secret")})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, PKCS12, store.Kind())
	assert.Equal(t, []string{"Jane Signer"}, store.Aliases())

	alias, err := ResolveAlias(store, "")
	require.NoError(t, err)
	assert.Equal(t, "Jane Signer", alias)

	km, err := Extract(store, alias, nil)
	require.NoError(t, err)
	assert.Equal(t, id.Cert.Raw, km.Certificate().Raw)
	assert.Len(t, km.Chain, 3)

	_, _, err = Load(Options{File: path, Password: ptr("wrong")})
	f := operation.AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, operation.KeystoreLoadFailed, f.Kind)
	assert.Equal(t, "incorrect password", f.Args["reason"])
}

func TestPKCS12TrustStore(t *testing.T) {
	pki := newPKI(t)
	id := pki.IssueLeaf("Jane Signer")
	path := filepath.Join(t.TempDir(), "trust.p12")
	data, err := pkcs12.Modern.EncodeTrustStore(id.Chain, "secret")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	store, _, err := Load(Options{File: path, Password: ptr("secret")})
	require.NoError(t, err)
	assert.Equal(t, PKCS12, store.Kind())
	require.Len(t, store.Aliases(), len(id.Chain))
	assert.Equal(t, "Jane Signer", store.Aliases()[0])

	_, err = ResolveAlias(store, "")
	f := operation.AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, operation.AliasAmbiguous, f.Kind)
	assert.Equal(t, 0, f.Args["count"])

	_, err = ResolveAlias(store, "Jane Signer")
	assert.Equal(t, operation.AliasNoKey, operation.KindOf(err))

	_, _, err = Load(Options{File: path, Password: ptr("wrong")})
	assert.Equal(t, operation.KeystoreLoadFailed, operation.KindOf(err))
}

func TestMissingPasswordWarns(t *testing.T) {
	pki := newPKI(t)
	path := filepath.Join(t.TempDir(), "empty.p12")
	pki.IssueLeaf("No Password").WritePKCS12(t, path, "")

	store, warnings, err := Load(Options{Kind: "pkcs12", File: path})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Equal(t, []string{"No Password"}, store.Aliases())
}

func TestJKSAliasResolution(t *testing.T) {
	pki := newPKI(t)
	dir := t.TempDir()
	alice := pki.IssueLeaf("Alice")
	bob := pki.IssueLeaf("Bob")

	single := filepath.Join(dir, "single.jks")
	testpki.WriteJKS(t, single, "changeit",
		testpki.JKSEntry{Alias: "alice", Identity: alice},
		testpki.JKSEntry{Alias: "root", Cert: pki.RootCert})

	double := filepath.Join(dir, "double.jks")
	testpki.WriteJKS(t, double, "changeit",
		testpki.JKSEntry{Alias: "alice", Identity: alice},
		testpki.JKSEntry{Alias: "bob", Identity: bob, Password: "bobs-key"})

	none := filepath.Join(dir, "none.jks")
	testpki.WriteJKS(t, none, "changeit", testpki.JKSEntry{Alias: "root", Cert: pki.RootCert})

	tests := []struct {
		name      string
		file      string
		requested string
		want      string
		wantKind  operation.Kind
		count     int
	}{
		{"only key entry", single, "", "alice", 0, 0},
		{"requested", double, "bob", "bob", 0, 0},
		{"case insensitive", double, "ALICE", "alice", 0, 0},
		{"two keys", double, "", "", operation.AliasAmbiguous, 2},
		{"no keys", none, "", "", operation.AliasAmbiguous, 0},
		{"not found", single, "carol", "", operation.AliasNotFound, 0},
		{"certificate only", single, "root", "", operation.AliasNoKey, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, err := Load(Options{Kind: "jks", File: tt.file, Password: ptr("changeit")})
			require.NoError(t, err)

			got, err := ResolveAlias(store, tt.requested)
			if tt.wantKind != 0 {
				assert.Equal(t, tt.wantKind, operation.KindOf(err))
				if tt.wantKind == operation.AliasAmbiguous {
					assert.Equal(t, tt.count, operation.AsFailure(err).Args["count"])
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJKSKeyPassword(t *testing.T) {
	pki := newPKI(t)
	path := filepath.Join(t.TempDir(), "keys.jks")
	alice := pki.IssueLeaf("Alice")
	bob := pki.IssueLeaf("Bob")
	testpki.WriteJKS(t, path, "changeit",
		testpki.JKSEntry{Alias: "alice", Identity: alice},
		testpki.JKSEntry{Alias: "bob", Identity: bob, Password: "bobs-key"})

	store, _, err := Load(Options{Kind: "jks", File: path, Password: ptr("changeit")})
	require.NoError(t, err)

	// Falls back to the store password.
	km, err := Extract(store, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, alice.Cert.Raw, km.Certificate().Raw)
	assert.Len(t, km.Chain, 3)

	_, err = Extract(store, "bob", nil)
	assert.Equal(t, operation.KeyExtractionFailed, operation.KindOf(err))

	km, err = Extract(store, "bob", ptr("bobs-key"))
	require.NoError(t, err)
	assert.Equal(t, bob.Cert.Raw, km.Certificate().Raw)

	_, _, err = Load(Options{Kind: "jks", File: path, Password: ptr("wrong-password")})
	assert.Equal(t, operation.KeystoreLoadFailed, operation.KindOf(err))
}

func TestPKCS11WithoutModule(t *testing.T) {
	t.Setenv(ModuleEnv, "")
	_, _, err := Load(Options{Kind: "pkcs11"})
	assert.Equal(t, operation.KeystoreLoadFailed, operation.KindOf(err))
	assert.ErrorIs(t, err, ErrNoModule)

	_, _, err = Load(Options{Kind: "pkcs11", PKCS11: PKCS11Options{Module: filepath.Join(t.TempDir(), "missing.so")}})
	assert.Equal(t, operation.KeystoreLoadFailed, operation.KindOf(err))
}

func TestSignInputRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("document"))

	_, input, err := signInput(&key.PublicKey, digest[:], crypto.SHA256)
	require.NoError(t, err)

	// A raw PKCS#1 v1.5 signature over DigestInfo equals a normal SHA-256
	// signature.
	raw, err := rsa.SignPKCS1v15(nil, key, crypto.Hash(0), input)
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], raw))

	_, _, err = signInput(&key.PublicKey, digest[:], crypto.MD5)
	assert.Error(t, err)
}

func TestECDSADER(t *testing.T) {
	pki := newPKI(t)
	key := pki.IssueLeaf("EC").Key.(*ecdsa.PrivateKey)
	digest := sha256.Sum256([]byte("document"))

	der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	var r, s big.Int
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	require.True(t, input.ReadASN1(&seq, asn1.SEQUENCE))
	require.True(t, seq.ReadASN1Integer(&r))
	require.True(t, seq.ReadASN1Integer(&s))

	size := (key.Curve.Params().BitSize + 7) / 8
	raw := make([]byte, 2*size)
	r.FillBytes(raw[:size])
	s.FillBytes(raw[size:])

	converted, err := ecdsaDER(raw)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], converted))

	_, err = ecdsaDER([]byte{1, 2, 3})
	assert.Error(t, err)
}
