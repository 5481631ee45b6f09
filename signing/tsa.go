package signing

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/digitorus/timestamp"
)

// ErrNonceMismatch is returned when the time stamp does not echo the nonce
// of the request.
var ErrNonceMismatch = errors.New("timestamp nonce does not match the request")

var maxNonce = new(big.Int).Lsh(big.NewInt(1), 64)

// timestampToken requests an RFC 3161 time stamp over signature from the
// configured TSA and returns the raw token.
func (ctx *signContext) timestampToken(signature []byte) ([]byte, error) {
	tsa := ctx.params.TSA

	nonce, err := rand.Int(ctx.provider.rand(), maxNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to create nonce: %w", err)
	}
	request, err := timestamp.CreateRequest(bytes.NewReader(signature), &timestamp.RequestOptions{
		Hash:         ctx.hash,
		Certificates: true,
		Nonce:        nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, tsa.URL, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request (%s): %w", tsa.URL, err)
	}
	req.Header.Add("Content-Type", "application/timestamp-query")
	req.Header.Add("Content-Transfer-Encoding", "binary")
	if tsa.Username != "" && tsa.Password != "" {
		req.SetBasicAuth(tsa.Username, tsa.Password)
	}

	resp, err := ctx.provider.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", tsa.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New("non success response (" + strconv.Itoa(resp.StatusCode) + "): " + string(body))
	}

	ts, err := parseTimestampToken(body)
	if err != nil {
		return nil, err
	}
	if ts.Nonce != nil && ts.Nonce.Cmp(nonce) != 0 {
		return nil, ErrNonceMismatch
	}
	return ts.RawToken, nil
}
