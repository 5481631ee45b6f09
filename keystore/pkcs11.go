package keystore

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/miekg/pkcs11"
)

// ModuleEnv names the environment variable holding the PKCS#11 module path
// when none is configured.
const ModuleEnv = "PDFMU_PKCS11_MODULE"

// ErrNoModule is returned when no PKCS#11 module is configured.
var ErrNoModule = errors.New("pkcs11: no module configured (set " + ModuleEnv + ")")

// PKCS11Options locate the token.
type PKCS11Options struct {
	Module string
	// Token label. Empty selects the first token present.
	Token string
}

type pkcs11Entry struct {
	label  string
	id     []byte
	cert   *x509.Certificate
	hasKey bool
}

// pkcs11Store is an inventory of the certificates on a token. Keys never
// leave the token; signing opens a new session per operation.
type pkcs11Store struct {
	module  string
	token   string
	pin     string
	entries map[string]*pkcs11Entry
	aliases []string
	certs   []*x509.Certificate
}

func loadPKCS11(opts PKCS11Options, pin *string) (*pkcs11Store, error) {
	module := opts.Module
	if module == "" {
		module = os.Getenv(ModuleEnv)
	}
	if module == "" {
		return nil, ErrNoModule
	}
	log.Printf("PKCS#11 module: %s", module)

	s := &pkcs11Store{module: module, token: opts.Token, entries: make(map[string]*pkcs11Entry)}
	if pin != nil {
		s.pin = *pin
	}

	err := s.withSession(func(p *pkcs11.Ctx, session pkcs11.SessionHandle) error {
		certs, err := findObjects(p, session, pkcs11.CKO_CERTIFICATE)
		if err != nil {
			return err
		}
		for _, obj := range certs {
			attrs, err := p.GetAttributeValue(session, obj, []*pkcs11.Attribute{
				pkcs11.NewAttribute(pkcs11.CKA_LABEL, nil),
				pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
				pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
			})
			if err != nil {
				return fmt.Errorf("pkcs11: error reading certificate: %w", err)
			}
			cert, err := x509.ParseCertificate(attrs[2].Value)
			if err != nil {
				continue
			}
			s.certs = append(s.certs, cert)

			label := string(attrs[0].Value)
			if label == "" {
				label = cert.Subject.CommonName
			}
			if _, dup := s.entries[label]; dup || label == "" {
				continue
			}
			s.entries[label] = &pkcs11Entry{label: label, id: attrs[1].Value, cert: cert}
			s.aliases = append(s.aliases, label)
		}

		keys, err := findObjects(p, session, pkcs11.CKO_PRIVATE_KEY)
		if err != nil {
			return err
		}
		for _, obj := range keys {
			attrs, err := p.GetAttributeValue(session, obj, []*pkcs11.Attribute{
				pkcs11.NewAttribute(pkcs11.CKA_LABEL, nil),
				pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
			})
			if err != nil {
				continue
			}
			for _, e := range s.entries {
				if (len(e.id) > 0 && bytes.Equal(e.id, attrs[1].Value)) || e.label == string(attrs[0].Value) {
					e.hasKey = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(s.aliases)
	return s, nil
}

func (s *pkcs11Store) Kind() Kind { return PKCS11 }

func (s *pkcs11Store) Aliases() []string { return s.aliases }

func (s *pkcs11Store) Lookup(alias string) (string, bool) {
	_, ok := s.entries[alias]
	return alias, ok
}

func (s *pkcs11Store) IsKeyEntry(alias string) bool {
	e, ok := s.entries[alias]
	return ok && e.hasKey
}

// Key returns a signer bound to the token key. The password is not used, the
// token PIN was given when the store was loaded.
func (s *pkcs11Store) Key(alias string, _ []byte) (*KeyMaterial, error) {
	e, ok := s.entries[alias]
	if !ok || !e.hasKey {
		return nil, fmt.Errorf("pkcs11: no private key for %q", alias)
	}
	signer := &Signer{
		ModulePath: s.module,
		TokenLabel: s.token,
		KeyLabel:   e.label,
		KeyID:      e.id,
		PIN:        s.pin,
		PublicKey:  e.cert.PublicKey,
	}
	return &KeyMaterial{Signer: signer, Chain: buildChain(e.cert, s.certs)}, nil
}

// buildChain orders the issuers of leaf found among certs, leaf first.
func buildChain(leaf *x509.Certificate, certs []*x509.Certificate) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	current := leaf
	for len(chain) <= len(certs) {
		if bytes.Equal(current.RawIssuer, current.RawSubject) {
			break
		}
		var next *x509.Certificate
		for _, c := range certs {
			if bytes.Equal(c.RawSubject, current.RawIssuer) && current.CheckSignatureFrom(c) == nil {
				next = c
				break
			}
		}
		if next == nil {
			break
		}
		chain = append(chain, next)
		current = next
	}
	return chain
}

func (s *pkcs11Store) withSession(fn func(*pkcs11.Ctx, pkcs11.SessionHandle) error) error {
	return withSession(s.module, s.token, s.pin, fn)
}

// withSession loads module, opens a session on the token and logs in when a
// PIN is given.
func withSession(module, token, pin string, fn func(*pkcs11.Ctx, pkcs11.SessionHandle) error) error {
	p := pkcs11.New(module)
	if p == nil {
		return fmt.Errorf("pkcs11: failed to load module %s", module)
	}
	if err := p.Initialize(); err != nil {
		p.Destroy()
		return fmt.Errorf("pkcs11: error initializing module: %w", err)
	}
	defer func() {
		_ = p.Finalize()
		p.Destroy()
	}()

	slots, err := p.GetSlotList(true)
	if err != nil {
		return fmt.Errorf("pkcs11: error getting slots: %w", err)
	}

	var slotID uint
	foundSlot := false
	for _, sID := range slots {
		tokenInfo, err := p.GetTokenInfo(sID)
		if err != nil {
			continue
		}
		if token == "" || tokenInfo.Label == token {
			slotID = sID
			foundSlot = true
			break
		}
	}
	if !foundSlot {
		return fmt.Errorf("pkcs11: token with label %q not found", token)
	}

	session, err := p.OpenSession(slotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return fmt.Errorf("pkcs11: error opening session: %w", err)
	}
	defer func() { _ = p.CloseSession(session) }()

	if pin != "" {
		if err := p.Login(session, pkcs11.CKU_USER, pin); err != nil {
			return fmt.Errorf("pkcs11: error logging in: %w", err)
		}
		defer func() { _ = p.Logout(session) }()
	}
	return fn(p, session)
}

func findObjects(p *pkcs11.Ctx, session pkcs11.SessionHandle, class uint, extra ...*pkcs11.Attribute) ([]pkcs11.ObjectHandle, error) {
	template := append([]*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_CLASS, class)}, extra...)
	if err := p.FindObjectsInit(session, template); err != nil {
		return nil, fmt.Errorf("pkcs11: error finding objects: %w", err)
	}

	var all []pkcs11.ObjectHandle
	for {
		objs, _, err := p.FindObjects(session, 32)
		if err != nil {
			_ = p.FindObjectsFinal(session)
			return nil, fmt.Errorf("pkcs11: error finding objects: %w", err)
		}
		if len(objs) == 0 {
			break
		}
		all = append(all, objs...)
	}
	if err := p.FindObjectsFinal(session); err != nil {
		return nil, fmt.Errorf("pkcs11: error finalizing object find: %w", err)
	}
	return all, nil
}
