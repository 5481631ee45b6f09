// Package keystore loads signing keys and certificate chains from keystores.
package keystore

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitorus/pdfmu/operation"
)

// Kind identifies a keystore backend.
type Kind string

const (
	// JKS is a Java keystore file.
	JKS Kind = "jks"
	// PKCS12 is a PKCS#12 (.p12, .pfx) file.
	PKCS12 Kind = "pkcs12"
	// PKCS11 is a token reached through a PKCS#11 module.
	PKCS11 Kind = "pkcs11"
)

var (
	// ErrKeyMismatch is returned when the private key does not belong to the
	// leaf certificate.
	ErrKeyMismatch = errors.New("private key does not match the certificate")
	// ErrNoChain is returned when an alias has no certificates.
	ErrNoChain = errors.New("alias has no certificate chain")
)

// Options select and unlock a keystore.
type Options struct {
	// Kind of the store. Empty means guess from the file extension.
	Kind string
	// File of file backed stores.
	File string
	// Password of the store. Nil is treated as an empty password.
	Password *string
	PKCS11   PKCS11Options
}

// Store is a loaded keystore.
type Store interface {
	Kind() Kind
	// Aliases returns all aliases in a stable order.
	Aliases() []string
	// Lookup returns the stored spelling of alias.
	Lookup(alias string) (string, bool)
	// IsKeyEntry reports whether alias carries a private key.
	IsKeyEntry(alias string) bool
	// Key returns the key and chain of alias. A nil password means the
	// store password.
	Key(alias string, password []byte) (*KeyMaterial, error)
}

// KeyMaterial is a private key and its certificate chain, leaf first.
type KeyMaterial struct {
	Signer crypto.Signer
	Chain  []*x509.Certificate
}

// Certificate returns the leaf certificate.
func (km *KeyMaterial) Certificate() *x509.Certificate {
	return km.Chain[0]
}

// ParseKind maps a kind name to a Kind. Empty names are guessed from file.
func ParseKind(name, file string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jks":
		return JKS, nil
	case "pkcs12", "p12", "pfx":
		return PKCS12, nil
	case "pkcs11":
		return PKCS11, nil
	case "":
		kind := PKCS12
		switch strings.ToLower(filepath.Ext(file)) {
		case ".jks", ".keystore":
			kind = JKS
		}
		log.Printf("Keystore type not specified. Assuming %s.", kind)
		return kind, nil
	}
	return "", operation.New(operation.KeystoreTypeUnsupported, nil, operation.A("type", name))
}

// Load opens the keystore described by opts. The returned warnings describe
// defaults that were applied.
func Load(opts Options) (Store, []string, error) {
	kind, err := ParseKind(opts.Kind, opts.File)
	if err != nil {
		return nil, nil, err
	}
	typeArg := operation.A("type", string(kind))

	var warnings []string
	password := ""
	if opts.Password != nil {
		password = *opts.Password
	}

	if kind == PKCS11 {
		store, err := loadPKCS11(opts.PKCS11, opts.Password)
		if err != nil {
			return nil, nil, operation.New(operation.KeystoreLoadFailed, err, typeArg)
		}
		return store, nil, nil
	}

	if opts.File == "" {
		return nil, nil, operation.New(operation.KeystoreFileNotSpecified, nil, typeArg)
	}
	if opts.Password == nil {
		w := "Keystore password not specified. Using an empty password."
		log.Printf("Warning: %s", w)
		warnings = append(warnings, w)
	}

	data, err := readFile(opts.File)
	if err != nil {
		return nil, warnings, err
	}
	log.Printf("Keystore file: %s", opts.File)

	var store Store
	switch kind {
	case JKS:
		store, err = loadJKS(bytes.NewReader(data), password)
	case PKCS12:
		store, err = loadPKCS12(data, password)
	}
	if err != nil {
		f := operation.New(operation.KeystoreLoadFailed, err, typeArg)
		if reason := loadFailureReason(err); reason != "" {
			f.Args["reason"] = reason
		}
		return nil, warnings, f
	}
	return store, warnings, nil
}

func readFile(path string) ([]byte, error) {
	arg := operation.A("file", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, operation.New(operation.KeystoreFileOpenFailed, err, arg)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		_ = f.Close()
		return nil, operation.New(operation.KeystoreFileOpenFailed, err, arg)
	}
	if err := f.Close(); err != nil {
		return nil, operation.New(operation.KeystoreFileClose, err, arg)
	}
	return data, nil
}

// ResolveAlias returns the alias to sign with. Without a requested alias
// the store must hold exactly one key entry.
func ResolveAlias(store Store, requested string) (string, error) {
	if requested != "" {
		alias, ok := store.Lookup(requested)
		if !ok {
			return "", operation.New(operation.AliasNotFound, nil, operation.A("alias", requested))
		}
		if !store.IsKeyEntry(alias) {
			return "", operation.New(operation.AliasNoKey, nil, operation.A("alias", alias))
		}
		return alias, nil
	}

	var keys []string
	for _, alias := range store.Aliases() {
		if store.IsKeyEntry(alias) {
			keys = append(keys, alias)
		}
	}
	if len(keys) != 1 {
		return "", operation.New(operation.AliasAmbiguous, nil, operation.A("count", len(keys)))
	}
	log.Printf("Key alias not specified. Using the only key entry: %s", keys[0])
	return keys[0], nil
}

// Extract retrieves the key material of alias. A nil keyPassword falls back
// to the store password.
func Extract(store Store, alias string, keyPassword *string) (*KeyMaterial, error) {
	var password []byte
	if keyPassword != nil {
		password = []byte(*keyPassword)
	} else if store.Kind() == JKS {
		log.Println("Warning: Key password not specified. Using the keystore password.")
	}

	arg := operation.A("alias", alias)
	km, err := store.Key(alias, password)
	if err != nil {
		return nil, operation.New(operation.KeyExtractionFailed, err, arg)
	}
	if len(km.Chain) == 0 {
		return nil, operation.New(operation.KeyExtractionFailed, ErrNoChain, arg)
	}
	if !publicKeyMatches(km.Signer.Public(), km.Chain[0].PublicKey) {
		return nil, operation.New(operation.KeyExtractionFailed, ErrKeyMismatch, arg)
	}
	return km, nil
}

func publicKeyMatches(a, b crypto.PublicKey) bool {
	k, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && k.Equal(b)
}

func asSigner(key any) (crypto.Signer, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}

func parseChain(ders [][]byte) ([]*x509.Certificate, error) {
	chain := make([]*x509.Certificate, 0, len(ders))
	for i, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d of the chain: %w", i, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}
