package keystore

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"
)

// jksStore is a Java keystore. Aliases are stored lower case and keys may
// carry their own password.
type jksStore struct {
	ks       keystore.KeyStore
	password []byte
	aliases  []string
}

func loadJKS(r io.Reader, password string) (*jksStore, error) {
	ks := keystore.New()
	if err := ks.Load(r, []byte(password)); err != nil {
		return nil, err
	}
	aliases := ks.Aliases()
	sort.Strings(aliases)
	return &jksStore{ks: ks, password: []byte(password), aliases: aliases}, nil
}

func (s *jksStore) Kind() Kind { return JKS }

func (s *jksStore) Aliases() []string { return s.aliases }

func (s *jksStore) Lookup(alias string) (string, bool) {
	lower := strings.ToLower(alias)
	for _, a := range s.aliases {
		if a == lower {
			return a, true
		}
	}
	return "", false
}

func (s *jksStore) IsKeyEntry(alias string) bool {
	return s.ks.IsPrivateKeyEntry(alias)
}

func (s *jksStore) Key(alias string, password []byte) (*KeyMaterial, error) {
	if password == nil {
		password = s.password
	}
	// The library may clear the password slice it is given.
	entry, err := s.ks.GetPrivateKeyEntry(alias, append([]byte(nil), password...))
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	signer, err := asSigner(key)
	if err != nil {
		return nil, err
	}

	ders := make([][]byte, 0, len(entry.CertificateChain))
	for _, c := range entry.CertificateChain {
		if c.Type != "" && c.Type != "X509" && c.Type != "X.509" {
			return nil, errors.New("unsupported certificate type " + c.Type)
		}
		ders = append(ders, c.Content)
	}
	chain, err := parseChain(ders)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{Signer: signer, Chain: chain}, nil
}
