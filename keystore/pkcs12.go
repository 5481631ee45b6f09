package keystore

import (
	"crypto/x509"
	"errors"
	"slices"
	"strconv"

	"software.sslmate.com/src/go-pkcs12"
)

// pkcs12Store holds the entries of a PKCS#12 file, which is decrypted when
// the store is loaded. A file carries at most one key entry; a trust store
// carries certificates only.
type pkcs12Store struct {
	aliases  []string
	keyAlias string
	km       *KeyMaterial
}

func loadPKCS12(data []byte, password string) (*pkcs12Store, error) {
	key, leaf, cas, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, err
		}
		certs, terr := pkcs12.DecodeTrustStore(data, password)
		if terr != nil {
			return nil, err
		}
		return &pkcs12Store{aliases: certificateAliases(certs)}, nil
	}
	signer, err := asSigner(key)
	if err != nil {
		return nil, err
	}

	alias := certificateAliases([]*x509.Certificate{leaf})[0]
	return &pkcs12Store{
		aliases:  []string{alias},
		keyAlias: alias,
		km: &KeyMaterial{
			Signer: signer,
			Chain:  append([]*x509.Certificate{leaf}, cas...),
		},
	}, nil
}

// certificateAliases names certificates by their common name, falling back
// to the position in the file. Repeated names get the position appended.
func certificateAliases(certs []*x509.Certificate) []string {
	aliases := make([]string, 0, len(certs))
	for i, cert := range certs {
		n := strconv.Itoa(i + 1)
		alias := cert.Subject.CommonName
		switch {
		case alias == "":
			alias = n
		case slices.Contains(aliases, alias):
			alias += " (" + n + ")"
		}
		aliases = append(aliases, alias)
	}
	return aliases
}

func (s *pkcs12Store) Kind() Kind { return PKCS12 }

func (s *pkcs12Store) Aliases() []string { return s.aliases }

func (s *pkcs12Store) Lookup(alias string) (string, bool) {
	return alias, slices.Contains(s.aliases, alias)
}

func (s *pkcs12Store) IsKeyEntry(alias string) bool {
	return s.km != nil && alias == s.keyAlias
}

// Key ignores password: the file has one password protecting all bags.
func (s *pkcs12Store) Key(alias string, password []byte) (*KeyMaterial, error) {
	if !s.IsKeyEntry(alias) {
		return nil, errors.New("no key entry " + alias)
	}
	return s.km, nil
}

// loadFailureReason names the cause of a load failure when the library
// reports it distinctly.
func loadFailureReason(err error) string {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return "incorrect password"
	}
	return ""
}
