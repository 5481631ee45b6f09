package cli

import (
	"log"
	"os"

	"github.com/digitorus/pdfmu"
	"github.com/digitorus/pdfmu/keystore"
	"github.com/digitorus/pdfmu/revocation"
	"github.com/digitorus/pdfmu/signing"
)

// signFlags holds the options of the sign command.
type signFlags struct {
	out outputFlags

	keystore, kind          string
	storePass, storePassEnv string
	alias                   string
	keyPass, keyPassEnv     string
	pkcs11Module            string
	pkcs11Token             string

	digest, standard, certification string
	name, reason, location, contact string

	tsa, tsaUser, tsaPassword string
	embedOCSP, embedCRL       bool
}

func signCommand(g *globals, args []string) error {
	fs := newFlagSet("sign", "[options] <input.pdf>")
	cfg := g.config.Signature

	var f signFlags
	f.out.register(fs)
	fs.StringVar(&f.keystore, "keystore", "", "Keystore file")
	fs.StringVar(&f.kind, "type", cfg.KeystoreType, "Keystore type: jks, pkcs12 or pkcs11 (default: guess from the file extension)")
	fs.StringVar(&f.storePass, "storepass", "", "Keystore password")
	fs.StringVar(&f.storePassEnv, "storepass-envvar", "", "Environment variable holding the keystore password")
	fs.StringVar(&f.alias, "key-alias", "", "Alias of the signing key (default: the only key of the keystore)")
	fs.StringVar(&f.keyPass, "keypass", "", "Key password (default: the keystore password)")
	fs.StringVar(&f.keyPassEnv, "keypass-envvar", "", "Environment variable holding the key password")
	fs.StringVar(&f.pkcs11Module, "pkcs11-module", g.config.PKCS11.Module, "PKCS#11 module (default $"+keystore.ModuleEnv+")")
	fs.StringVar(&f.pkcs11Token, "pkcs11-token", g.config.PKCS11.Token, "PKCS#11 token label")

	fs.StringVar(&f.digest, "digest-algorithm", cfg.DigestAlgorithm, "Digest algorithm: SHA1, SHA256, SHA384 or SHA512")
	fs.StringVar(&f.standard, "standard", cfg.Standard, "Signature standard: cms or cades")
	fs.StringVar(&f.certification, "certification-level", "not-certified", "not-certified, no-changes, form-filling or form-filling-and-annotations")
	fs.StringVar(&f.name, "name", "", "Name of the signatory")
	fs.StringVar(&f.reason, "reason", "", "Reason for signing")
	fs.StringVar(&f.location, "location", "", "Location of the signatory")
	fs.StringVar(&f.contact, "contact", "", "Contact information for signatory")

	fs.StringVar(&f.tsa, "tsa", cfg.TSAURL, "URL of a Time-Stamp Authority")
	fs.StringVar(&f.tsaUser, "tsa-user", cfg.TSAUsername, "Time-Stamp Authority user")
	fs.StringVar(&f.tsaPassword, "tsa-password", cfg.TSAPassword, "Time-Stamp Authority password")
	fs.BoolVar(&f.embedOCSP, "embed-ocsp", cfg.EmbedOCSP, "Embed OCSP responses of the certificate chain")
	fs.BoolVar(&f.embedCRL, "embed-crl", cfg.EmbedCRL, "Embed CRLs of the certificate chain")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	input, err := inputArg(fs, positional)
	if err != nil {
		return err
	}

	storePass, err := secret(fs, "storepass", f.storePass, "storepass-envvar", f.storePassEnv)
	if err != nil {
		return err
	}
	keyPass, err := secret(fs, "keypass", f.keyPass, "keypass-envvar", f.keyPassEnv)
	if err != nil {
		return err
	}

	provider := signing.NewProvider()
	params, err := f.parameters(provider)
	if err != nil {
		return err
	}

	opts := keystore.Options{
		Kind:     f.kind,
		File:     f.keystore,
		Password: storePass,
		PKCS11:   keystore.PKCS11Options{Module: f.pkcs11Module, Token: f.pkcs11Token},
	}
	// The environment overrides the config file, a flag overrides both.
	if env := os.Getenv(keystore.ModuleEnv); env != "" && !isSet(fs, "pkcs11-module") {
		opts.PKCS11.Module = env
	}

	res, err := pdfmu.Sign(pdfmu.NewSession(), provider, input, f.out.target(), opts, f.alias, keyPass, params)
	if err != nil {
		return err
	}
	return g.report.result(res, nil)
}

// parameters builds the signature parameters. Revocation lookups go through
// the HTTP client of p.
func (f *signFlags) parameters(p *signing.Provider) (signing.Parameters, error) {
	standard, err := signing.ParseStandard(f.standard)
	if err != nil {
		return signing.Parameters{}, err
	}
	level, err := signing.ParseCertificationLevel(f.certification)
	if err != nil {
		return signing.Parameters{}, err
	}

	params := signing.Parameters{
		DigestAlgorithm: f.digest,
		Standard:        standard,
		Appearance: signing.Appearance{
			Name:               f.name,
			Reason:             f.reason,
			Location:           f.location,
			Contact:            f.contact,
			CertificationLevel: level,
		},
	}
	if f.tsa != "" {
		params.TSA = &signing.TSA{URL: f.tsa, Username: f.tsaUser, Password: f.tsaPassword}
		log.Printf("Time-Stamp Authority: %s", f.tsa)
	}
	if f.embedOCSP || f.embedCRL {
		params.Revocation = revocation.NewFunction(f.revocationOptions(p))
	}
	return params, nil
}

func (f *signFlags) revocationOptions(p *signing.Provider) revocation.Options {
	return revocation.Options{
		EmbedOCSP: f.embedOCSP,
		EmbedCRL:  f.embedCRL,
		Cache:     revocation.NewMemoryCache(),
		Client:    p.HTTPClient,
	}
}
