// Package signing appends a detached signature to a staged document.
package signing

import (
	"crypto/rand"
	"io"
	"net/http"
	"time"
)

// Provider supplies the randomness, clock and network access used while
// signing. It is created once and passed to every signing operation.
type Provider struct {
	Rand       io.Reader
	Now        func() time.Time
	HTTPClient *http.Client
}

// NewProvider returns a provider backed by crypto/rand, the system clock and
// an HTTP client with a 30 second timeout.
func NewProvider() *Provider {
	return &Provider{
		Rand:       rand.Reader,
		Now:        time.Now,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Provider) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Provider) rand() io.Reader {
	if p == nil || p.Rand == nil {
		return rand.Reader
	}
	return p.Rand
}

func (p *Provider) client() *http.Client {
	if p == nil || p.HTTPClient == nil {
		return http.DefaultClient
	}
	return p.HTTPClient
}
