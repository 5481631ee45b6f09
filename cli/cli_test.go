package cli

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfmu"
	"github.com/digitorus/pdfmu/internal/testpdf"
	"github.com/digitorus/pdfmu/internal/testpki"
	"github.com/digitorus/pdfmu/signing"
)

// execute runs the command line and captures what it prints.
func execute(t *testing.T, args ...string) (code int, out, errOut string) {
	t.Helper()
	var o, e bytes.Buffer
	origOut, origErr := stdout, stderr
	stdout, stderr = &o, &e
	defer func() {
		stdout, stderr = origOut, origErr
		log.SetOutput(os.Stderr)
	}()
	code = Execute(args)
	return code, o.String(), e.String()
}

type rpcErrorRecord struct {
	JSONRPC string `json:"jsonrpc"`
	Error   struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			CauseClass string         `json:"causeClass"`
			Arguments  map[string]any `json:"arguments"`
		} `json:"data"`
	} `json:"error"`
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestRun(t *testing.T) {
	origExit := osExit
	defer func() { osExit = origExit }()

	var exitCode = -1
	osExit = func(code int) { exitCode = code }

	var o bytes.Buffer
	origOut := stdout
	stdout = &o
	defer func() { stdout = origOut }()

	Run([]string{"pdfmu", "--version"})
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, o.String(), "pdfmu version "+Version)
}

func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Error 2: Invalid arguments: no command given"},
		{"unknown command", []string{"frobnicate"}, "Error 2: Invalid arguments: unknown command frobnicate"},
		{"unknown flag", []string{"--frobnicate"}, "Error 2: Invalid arguments: flag provided but not defined: -frobnicate"},
		{"missing input", []string{"update-version"}, "Error 2: Invalid arguments: expected one input file, got 0"},
		{"bad version", []string{"update-version", "-v", "3.1", "in.pdf"}, `Error 2: Invalid arguments: unknown PDF version "3.1"`},
		{"bad format", []string{"--output-format", "xml", "inspect", "in.pdf"}, "Error 2: Invalid arguments: unknown output format xml"},
		{"bad property", []string{"update-properties", "--set", "novalue", "in.pdf"}, "Error 2: Invalid arguments:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := execute(t, tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestHelp(t *testing.T) {
	code, _, errOut := execute(t, "-h")
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "update-properties")

	code, _, errOut = execute(t, "sign", "-h")
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "-storepass-envvar")
}

func TestUpdateVersionCommand(t *testing.T) {
	dir := t.TempDir()
	in := testpdf.Write(t, dir, "in.pdf", testpdf.Options{Header: "1.4"})
	out := filepath.Join(dir, "out.pdf")

	code, stdoutText, _ := execute(t, "update-version", in, "-o", out, "-v", "1.7")
	require.Equal(t, 0, code)
	assert.Equal(t, "PDF version: 1.7\n", stdoutText)

	// The output now exists.
	code, _, errOut := execute(t, "update-version", in, "-o", out, "-v", "1.7")
	assert.Equal(t, 21, code)
	assert.Contains(t, errOut, "Output file "+out+" already exists.")

	code, _, _ = execute(t, "update-version", "-f", in, "-o", out)
	assert.Equal(t, 0, code)
	res, err := pdfmu.Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, "1.6", res.Version)

	code, stdoutText, _ = execute(t, "update-version", "--only-if-lower", "-v", "1.3", in, "-o", filepath.Join(dir, "unused.pdf"))
	assert.Equal(t, 0, code)
	assert.Equal(t, "PDF version: 1.4 (unchanged)\n", stdoutText)
	_, err = os.Stat(filepath.Join(dir, "unused.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestJSONOutput(t *testing.T) {
	dir := t.TempDir()
	in := testpdf.Write(t, dir, "in.pdf", testpdf.Options{Header: "1.4"})
	out := filepath.Join(dir, "out.pdf")

	code, stdoutText, _ := execute(t, "--output-format", "json", "--quiet", "update-version", in, "-o", out)
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"version":"1.6","changed":true}}`, stdoutText)

	code, stdoutText, errOut := execute(t, "--output-format", "json", "--quiet", "update-version", in, "-o", filepath.Join(dir, "lower.pdf"), "-v", "1.2")
	assert.Equal(t, 30, code)
	assert.Empty(t, stdoutText)

	var rec rpcErrorRecord
	require.NoError(t, json.Unmarshal([]byte(errOut), &rec))
	assert.Equal(t, "2.0", rec.JSONRPC)
	assert.Equal(t, 30, rec.Error.Code)
	assert.Equal(t, "Cannot lower the PDF version from 1.4 to 1.2. Set --allow-lower to override.", rec.Error.Message)
	assert.Equal(t, map[string]any{"inputVersion": "1.4", "requestedVersion": "1.2"}, rec.Error.Data.Arguments)
}

func TestQuiet(t *testing.T) {
	dir := t.TempDir()
	in := testpdf.Write(t, dir, "in.pdf", testpdf.Options{})

	code, _, errOut := execute(t, "--quiet", "update-version", in, "-o", filepath.Join(dir, "out.pdf"))
	assert.Equal(t, 0, code)
	assert.Empty(t, errOut)

	code, _, errOut = execute(t, "update-version", in, "-o", filepath.Join(dir, "loud.pdf"))
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "pdfmu: Input PDF document: "+in)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	in := testpdf.Write(t, dir, "in.pdf", testpdf.Options{Header: "1.3"})

	conf := filepath.Join(dir, "pdfmu.toml")
	require.NoError(t, os.WriteFile(conf, []byte("[output]\nformat = \"json\"\n\n[version]\ndefault = \"1.5\"\n"), 0o644))

	code, stdoutText, _ := execute(t, "--config", conf, "update-version", in, "-o", filepath.Join(dir, "out.pdf"))
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"version":"1.5","changed":true}}`, stdoutText)

	// Flags win over the file.
	code, stdoutText, _ = execute(t, "--config", conf, "--output-format", "text", "update-version", "-v", "1.7", in, "-o", filepath.Join(dir, "flag.pdf"))
	require.Equal(t, 0, code)
	assert.Equal(t, "PDF version: 1.7\n", stdoutText)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[output]\nformat = \"xml\"\n"), 0o644))
	code, _, errOut := execute(t, "--config", bad, "inspect", in)
	assert.Equal(t, 3, code)
	assert.Contains(t, errOut, "Could not load the configuration "+bad)

	code, _, _ = execute(t, "--config", filepath.Join(dir, "missing.toml"), "inspect", in)
	assert.Equal(t, 3, code)
}

func TestUpdatePropertiesCommand(t *testing.T) {
	dir := t.TempDir()
	in := testpdf.Write(t, dir, "in.pdf", testpdf.Options{Info: map[string]string{"Subject": "Old", "Producer": "Original"}})
	out := filepath.Join(dir, "out.pdf")

	code, stdoutText, errOut := execute(t, "update-properties", in, "-o", out,
		"--title", "Report", "--subject", "", "--producer", "Me", "--set", "Department=Finance")
	require.Equal(t, 0, code, errOut)
	assert.Empty(t, stdoutText)
	assert.Contains(t, errOut, `Warning: The property Producer is set automatically. The value "Me" will be ignored.`)

	res, err := pdfmu.Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, "Report", res.Properties["Title"])
	assert.Equal(t, "Finance", res.Properties["Department"])
	assert.Equal(t, "Original", res.Properties["Producer"])
	assert.NotContains(t, res.Properties, "Subject")
}

func TestSignCommand(t *testing.T) {
	dir := t.TempDir()
	in := testpdf.Write(t, dir, "in.pdf", testpdf.Options{})
	store := filepath.Join(dir, "signer.p12")
	testpki.New(t).IssueLeaf("CLI Signer").WritePKCS12(t, store, "storepw")

	t.Run("unsupported digest", func(t *testing.T) {
		code, _, errOut := execute(t, "sign", in, "-o", filepath.Join(dir, "md5.pdf"),
			"--keystore", filepath.Join(dir, "missing.p12"), "--digest-algorithm", "MD5")
		assert.Equal(t, 60, code)
		assert.Contains(t, errOut, "Error 60: The digest algorithm MD5 is not supported.")
	})

	t.Run("missing environment variable", func(t *testing.T) {
		code, _, errOut := execute(t, "sign", in, "-o", filepath.Join(dir, "env.pdf"),
			"--keystore", store, "--storepass-envvar", "PDFMU_TEST_UNSET_PASSWORD")
		assert.Equal(t, 2, code)
		assert.Contains(t, errOut, "PDFMU_TEST_UNSET_PASSWORD")
	})

	t.Run("wrong password", func(t *testing.T) {
		code, _, _ := execute(t, "sign", in, "-o", filepath.Join(dir, "wrong.pdf"),
			"--keystore", store, "--storepass", "nope")
		assert.Equal(t, 43, code)
	})

	t.Run("unknown certification level", func(t *testing.T) {
		code, _, _ := execute(t, "sign", in, "-o", filepath.Join(dir, "level.pdf"),
			"--keystore", store, "--certification-level", "everything")
		assert.Equal(t, 2, code)
	})

	t.Run("success", func(t *testing.T) {
		t.Setenv("PDFMU_TEST_PASSWORD", "storepw")
		out := filepath.Join(dir, "signed.pdf")
		code, stdoutText, errOut := execute(t, "--output-format", "json", "sign", in, "-o", out,
			"--keystore", store, "--storepass-envvar", "PDFMU_TEST_PASSWORD",
			"--reason", "Approved", "--standard", "cades")
		require.Equal(t, 0, code, errOut)
		assert.JSONEq(t, `{"jsonrpc":"2.0","result":{}}`, stdoutText)

		code, stdoutText, _ = execute(t, "inspect", out)
		require.Equal(t, 0, code)
		assert.Contains(t, stdoutText, "Signatures: 1\n")
		assert.Contains(t, stdoutText, "  Signature1 (ETSI.CAdES.detached)\n")
		assert.Contains(t, stdoutText, "    Reason: Approved\n")
	})
}

func TestInspectJSON(t *testing.T) {
	in := testpdf.Write(t, t.TempDir(), "in.pdf", testpdf.Options{Header: "1.5", Info: map[string]string{"Title": "T"}})

	code, stdoutText, _ := execute(t, "--quiet", "--output-format", "json", "inspect", in)
	require.Equal(t, 0, code)

	var rec struct {
		Result pdfmu.InspectResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lastLine(stdoutText)), &rec))
	assert.Equal(t, "1.5", rec.Result.Version)
	assert.Equal(t, "T", rec.Result.Properties["Title"])
	assert.Empty(t, rec.Result.Signatures)

	code, _, errOut := execute(t, "inspect", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Equal(t, 10, code)
	assert.Contains(t, errOut, "Error 10: Input file not found:")
	assert.Contains(t, errOut, "Caused by: *fs.PathError:")
}

func TestSignRevocationClient(t *testing.T) {
	p := signing.NewProvider()
	f := &signFlags{embedOCSP: true, standard: "cms", certification: "not-certified"}

	opts := f.revocationOptions(p)
	assert.Same(t, p.HTTPClient, opts.Client)
	assert.True(t, opts.EmbedOCSP)
	assert.False(t, opts.EmbedCRL)

	params, err := f.parameters(p)
	require.NoError(t, err)
	assert.NotNil(t, params.Revocation)

	params, err = (&signFlags{standard: "cms", certification: "not-certified"}).parameters(p)
	require.NoError(t, err)
	assert.Nil(t, params.Revocation)
}
