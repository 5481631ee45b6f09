package revocation

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/ocsp"
)

// Function adds the revocation information of cert to i. issuer is nil for
// the last certificate of a chain.
type Function func(cert, issuer *x509.Certificate, i *InfoArchival) error

// Cache stores downloaded revocation data by URL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte)
}

// MemoryCache is a concurrency safe in-memory Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.items[key]
	return data, ok
}

func (c *MemoryCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
}

// Options configure which revocation data is embedded.
type Options struct {
	EmbedOCSP bool
	EmbedCRL  bool
	// PreferCRL tries the CRL before OCSP.
	PreferCRL bool
	// StopOnSuccess stops after the first embedded status.
	StopOnSuccess bool
	Cache         Cache
	// Client used for downloads. Defaults to http.DefaultClient.
	Client *http.Client
}

// NewFunction returns a Function that downloads OCSP responses and CRLs as
// configured by opts. Nothing is downloaded for certificates without
// responder or distribution point.
func NewFunction(opts Options) Function {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	return func(cert, issuer *x509.Certificate, i *InfoArchival) error {
		tryOCSP := func() (bool, error) {
			if !opts.EmbedOCSP || issuer == nil || len(cert.OCSPServer) == 0 {
				return false, nil
			}
			err := embedOCSP(client, cert, issuer, i, opts.Cache)
			return err == nil, err
		}
		tryCRL := func() (bool, error) {
			if !opts.EmbedCRL || len(cert.CRLDistributionPoints) == 0 {
				return false, nil
			}
			err := embedCRL(client, cert, i, opts.Cache)
			return err == nil, err
		}

		first, second := tryOCSP, tryCRL
		if opts.PreferCRL {
			first, second = tryCRL, tryOCSP
		}

		embedded, err := first()
		if embedded && opts.StopOnSuccess {
			return nil
		}
		embedded2, err2 := second()
		switch {
		case embedded || embedded2:
			return nil
		case err != nil && err2 != nil:
			return fmt.Errorf("revocation data unavailable: primary=%v, secondary=%v", err, err2)
		case err != nil:
			return err
		}
		return err2
	}
}

func fetch(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("non success response (%d) from %s", resp.StatusCode, req.URL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func embedOCSP(client *http.Client, cert, issuer *x509.Certificate, i *InfoArchival, cache Cache) error {
	der, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(cert.OCSPServer[0], "/"), base64.StdEncoding.EncodeToString(der))
	if cache != nil {
		if data, ok := cache.Get(url); ok {
			return i.AddOCSP(data)
		}
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	body, err := fetch(client, req)
	if err != nil {
		// Some responders only accept POST.
		req, err = http.NewRequest(http.MethodPost, cert.OCSPServer[0], bytes.NewReader(der))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/ocsp-request")
		if body, err = fetch(client, req); err != nil {
			return err
		}
	}

	resp, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return fmt.Errorf("invalid OCSP response: %w", err)
	}
	if resp.Status != ocsp.Good {
		log.Printf("Warning: OCSP status of %s is not good (%d)", cert.Subject.CommonName, resp.Status)
	}
	if cache != nil {
		cache.Put(url, body)
	}
	return i.AddOCSP(body)
}

func embedCRL(client *http.Client, cert *x509.Certificate, i *InfoArchival, cache Cache) error {
	url := cert.CRLDistributionPoints[0]
	if cache != nil {
		if data, ok := cache.Get(url); ok {
			return i.AddCRL(data)
		}
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	body, err := fetch(client, req)
	if err != nil {
		return err
	}
	if _, err := x509.ParseRevocationList(body); err != nil {
		return fmt.Errorf("failed to parse CRL: %w", err)
	}
	if cache != nil {
		cache.Put(url, body)
	}
	return i.AddCRL(body)
}
