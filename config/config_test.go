package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfmu/config"
	"github.com/digitorus/pdfmu/operation"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig(t *testing.T) {
	const configContent = `
[output]
format = "json"

[version]
default = "1.7"

[signature]
digest_algorithm = "SHA512"
standard = "CAdES"
tsa_url = "http://tsa.example.com/tsr"
embed_ocsp = true

[pkcs11]
module = "/usr/lib/softhsm/libsofthsm2.so"
token = "signing"
`
	c, err := config.Read(write(t, "pdfmu.conf", configContent))
	require.NoError(t, err)

	assert.Equal(t, "json", c.Output.Format)
	assert.Equal(t, "1.7", c.Version.Default)
	assert.Equal(t, "SHA512", c.Signature.DigestAlgorithm)
	assert.Equal(t, "cades", c.Signature.Standard)
	assert.Equal(t, "http://tsa.example.com/tsr", c.Signature.TSAURL)
	assert.True(t, c.Signature.EmbedOCSP)
	assert.False(t, c.Signature.EmbedCRL)
	assert.Equal(t, "signing", c.PKCS11.Token)
}

func TestYAML(t *testing.T) {
	const configContent = `
output:
  format: text
signature:
  keystore_type: jks
  embed_crl: true
`
	c, err := config.Read(write(t, "pdfmu.yaml", configContent))
	require.NoError(t, err)

	assert.Equal(t, "jks", c.Signature.KeystoreType)
	assert.True(t, c.Signature.EmbedCRL)
	// Untouched sections keep their defaults.
	assert.Equal(t, "1.6", c.Version.Default)
	assert.Equal(t, "SHA256", c.Signature.DigestAlgorithm)
}

func TestDecodeOnly(t *testing.T) {
	var c config.Config
	_, err := toml.Decode(`[output]
format = "text"`, &c)
	require.NoError(t, err)
	assert.Equal(t, "text", c.Output.Format)

	// An empty version is not a valid default.
	assert.Error(t, c.ValidateFields())
	assert.NoError(t, config.Default().ValidateFields())
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"format", "a.conf", "[output]\nformat = \"xml\"\n"},
		{"version", "b.conf", "[version]\ndefault = \"3.1\"\n"},
		{"standard", "c.conf", "[signature]\nstandard = \"xades\"\n"},
		{"url", "d.conf", "[signature]\ntsa_url = \"not a url\"\n"},
		{"unknown key", "e.conf", "[signature]\ndigest = \"SHA1\"\n"},
		{"syntax", "f.conf", "[signature\n"},
		{"yaml unknown key", "g.yml", "output:\n  colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, tt.file, tt.content)
			_, err := config.Read(path)
			f := operation.AsFailure(err)
			require.NotNil(t, f)
			assert.Equal(t, operation.ConfigInvalid, f.Kind)
			assert.Equal(t, path, f.Args["file"])
			assert.NotEmpty(t, f.Args["reason"])
		})
	}
}

func TestMissingFile(t *testing.T) {
	old := config.DefaultLocation
	config.DefaultLocation = filepath.Join(t.TempDir(), "pdfmu.conf")
	defer func() { config.DefaultLocation = old }()

	c, err := config.Read("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)

	_, err = config.Read(filepath.Join(t.TempDir(), "explicit.conf"))
	assert.Equal(t, operation.ConfigInvalid, operation.KindOf(err))
}
