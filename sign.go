package pdfmu

import (
	"log"

	"github.com/digitorus/pdfmu/document"
	"github.com/digitorus/pdfmu/keystore"
	"github.com/digitorus/pdfmu/output"
	"github.com/digitorus/pdfmu/signing"
)

type signatureUpdate struct {
	provider    *signing.Provider
	store       keystore.Options
	alias       string
	keyPassword *string
	params      signing.Parameters
}

func (u *signatureUpdate) Name() string { return "sign" }

// Prepare accepts every document. The keystore is opened in Apply so that
// output failures are reported before any key is touched.
func (u *signatureUpdate) Prepare(*document.Handle) (bool, error) {
	return true, nil
}

func (u *signatureUpdate) Apply(doc *document.Handle, tx *output.Transaction) error {
	key, err := u.resolveKey()
	if err != nil {
		return err
	}
	return signing.Sign(u.provider, doc, tx, key, u.params)
}

func (u *signatureUpdate) resolveKey() (*keystore.KeyMaterial, error) {
	store, _, err := keystore.Load(u.store)
	if err != nil {
		return nil, err
	}
	alias, err := keystore.ResolveAlias(store, u.alias)
	if err != nil {
		return nil, err
	}
	key, err := keystore.Extract(store, alias, u.keyPassword)
	if err != nil {
		return nil, err
	}
	log.Printf("Signing with the key of the alias %s.", alias)
	return key, nil
}

// Sign appends a signature made with the key of alias in the keystore opts
// to the document at in. An empty alias selects the only key of the store.
// The digest algorithm is validated before the keystore is opened.
func Sign(s *Session, p *signing.Provider, in string, target output.Target, opts keystore.Options, alias string, keyPassword *string, params signing.Parameters) (*EmptyResult, error) {
	if _, err := signing.ParseDigest(params.DigestAlgorithm); err != nil {
		return nil, err
	}
	if p == nil {
		p = signing.NewProvider()
	}
	u := &signatureUpdate{
		provider:    p,
		store:       opts,
		alias:       alias,
		keyPassword: keyPassword,
		params:      params,
	}
	if err := s.Run(in, target, u); err != nil {
		return nil, err
	}
	return &EmptyResult{}, nil
}
