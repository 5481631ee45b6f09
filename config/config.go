// Package config reads the optional pdfmu configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"

	"github.com/digitorus/pdfmu/operation"
	"github.com/digitorus/pdfmu/version"
)

// DefaultLocation of the config file. A missing file at this location is
// not an error.
var DefaultLocation = "./pdfmu.conf"

// Config is the root of the config
type Config struct {
	Output    Output    `toml:"output" yaml:"output"`
	Version   Version   `toml:"version" yaml:"version"`
	Signature Signature `toml:"signature" yaml:"signature"`
	PKCS11    PKCS11    `toml:"pkcs11" yaml:"pkcs11"`
}

// Output selects how results are rendered.
type Output struct {
	Format string `toml:"format" yaml:"format" valid:"in(text|json),optional"`
}

// Version holds the version used by update-version when none is given.
type Version struct {
	Default string `toml:"default" yaml:"default" valid:"matches(^[12]\\.[0-9]$),optional"`
}

// Signature holds defaults of the sign command.
type Signature struct {
	DigestAlgorithm string `toml:"digest_algorithm" yaml:"digest_algorithm" valid:"optional"`
	Standard        string `toml:"standard" yaml:"standard" valid:"in(cms|cades),optional"`
	KeystoreType    string `toml:"keystore_type" yaml:"keystore_type" valid:"in(jks|pkcs12|pkcs11),optional"`
	TSAURL          string `toml:"tsa_url" yaml:"tsa_url" valid:"url,optional"`
	TSAUsername     string `toml:"tsa_username" yaml:"tsa_username" valid:"optional"`
	TSAPassword     string `toml:"tsa_password" yaml:"tsa_password" valid:"optional"`
	EmbedOCSP       bool   `toml:"embed_ocsp" yaml:"embed_ocsp" valid:"optional"`
	EmbedCRL        bool   `toml:"embed_crl" yaml:"embed_crl" valid:"optional"`
}

// PKCS11 configures the platform-managed keystore.
type PKCS11 struct {
	Module string `toml:"module" yaml:"module" valid:"optional"`
	Token  string `toml:"token" yaml:"token" valid:"optional"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output:    Output{Format: "text"},
		Version:   Version{Default: version.Default.String()},
		Signature: Signature{DigestAlgorithm: "SHA256", Standard: "cms"},
	}
}

// ValidateFields validates all the fields of the config
func (c Config) ValidateFields() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return err
	}
	if _, err := version.Parse(c.Version.Default); err != nil {
		return err
	}
	return nil
}

// Read loads the config file at path over the built-in defaults. An empty
// path reads DefaultLocation, which may be missing.
func Read(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultLocation
	}
	c := Default()

	invalid := func(err error) error {
		return operation.New(operation.ConfigInvalid, err, operation.A("file", path), operation.A("reason", err.Error()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, invalid(err)
	}
	log.Printf("Config file: %s", path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, invalid(err)
		}
	default:
		md, err := toml.Decode(string(data), &c)
		if err != nil {
			return c, invalid(err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return c, invalid(fmt.Errorf("unknown key %s", undecoded[0]))
		}
	}

	c.Signature.Standard = strings.ToLower(c.Signature.Standard)
	c.Signature.KeystoreType = strings.ToLower(c.Signature.KeystoreType)
	if err := c.ValidateFields(); err != nil {
		return c, invalid(err)
	}
	return c, nil
}
