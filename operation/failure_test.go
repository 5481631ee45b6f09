package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindCodesAreUnique(t *testing.T) {
	seen := make(map[int]Kind)
	for _, k := range Kinds() {
		if other, ok := seen[k.Code()]; ok {
			t.Errorf("code %d used by both %s and %s", k.Code(), other, k)
		}
		seen[k.Code()] = k
	}
	if len(seen) != len(kinds) {
		t.Errorf("Kinds() returned %d kinds, table has %d", len(seen), len(kinds))
	}
}

func TestKindCodesAreStable(t *testing.T) {
	tests := []struct {
		kind Kind
		code int
	}{
		{Unknown, 1},
		{InputNotFound, 10},
		{InputNotValidFormat, 11},
		{OutputNotSpecified, 20},
		{OutputExists, 21},
		{OutputOpen, 22},
		{OutputWrite, 23},
		{OutputClose, 24},
		{VersionWouldLower, 30},
		{KeystoreTypeUnsupported, 40},
		{KeystoreFileNotSpecified, 41},
		{KeystoreFileOpenFailed, 42},
		{KeystoreLoadFailed, 43},
		{AliasNotFound, 50},
		{AliasAmbiguous, 51},
		{AliasNoKey, 52},
		{KeyExtractionFailed, 53},
		{DigestAlgorithmUnsupported, 60},
		{SigningFailed, 61},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Code(); got != tt.code {
				t.Errorf("%s.Code() = %d, want %d", tt.kind, got, tt.code)
			}
		})
	}
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		template string
		args     map[string]any
		want     string
	}{
		{"single", "file ${f}", map[string]any{"f": "a.pdf"}, "file a.pdf"},
		{"repeated", "${a}-${a}", map[string]any{"a": 1}, "1-1"},
		{"missing kept", "from ${x} to ${y}", map[string]any{"x": "1.4"}, "from 1.4 to ${y}"},
		{"no args", "plain", nil, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.template, tt.args))
		})
	}
}

func TestFailureMessageAndUnwrap(t *testing.T) {
	cause := fs.ErrNotExist
	f := New(InputNotFound, cause, A("inputFile", "in.pdf"))

	assert.Equal(t, "Input file not found: in.pdf", f.Message())
	assert.Equal(t, 10, f.Code())
	assert.True(t, errors.Is(f, fs.ErrNotExist))

	wrapped := fmt.Errorf("outer: %w", f)
	assert.Equal(t, InputNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, New(InputNotFound, nil)))
	assert.False(t, errors.Is(wrapped, New(OutputExists, nil)))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestRPCError(t *testing.T) {
	f := New(OutputExists, nil, A("outputFile", "out.pdf"))
	re := f.RPCError()

	require.NotNil(t, re.Data)
	assert.Equal(t, 21, re.Code)
	assert.Empty(t, re.Data.CauseClass)
	assert.Equal(t, "out.pdf", re.Data.Arguments["outputFile"])

	b, err := json.Marshal(New(OutputNotSpecified, nil).RPCError())
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":20,"message":"Output file not specified."}`, string(b))

	withCause := New(SigningFailed, errors.New("boom"), A("reason", "boom")).RPCError()
	require.NotNil(t, withCause.Data)
	assert.Equal(t, "*errors.errorString", withCause.Data.CauseClass)
	assert.Equal(t, "boom", withCause.Data.CauseMessage)
}

func TestMatch(t *testing.T) {
	patterns := []MessagePattern{
		{
			Kind: SigningFailed,
			Expr: regexp.MustCompile(`nil pointer dereference`),
			Args: map[string]any{"reason": "invalid digest algorithm?"},
		},
		{
			Kind: KeystoreLoadFailed,
			Expr: regexp.MustCompile(`^keystore: (?P<reason>.+)$`),
		},
	}

	f := Match(errors.New("runtime error: invalid memory address or nil pointer dereference"), patterns...)
	require.NotNil(t, f)
	assert.Equal(t, SigningFailed, f.Kind)
	assert.Equal(t, "Could not sign the document: invalid digest algorithm?", f.Message())

	f = Match(errors.New("keystore: bad digest"), patterns...)
	require.NotNil(t, f)
	assert.Equal(t, "bad digest", f.Args["reason"])

	assert.Nil(t, Match(errors.New("something else"), patterns...))
	assert.Nil(t, Match(nil, patterns...))
}
