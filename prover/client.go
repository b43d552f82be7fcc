// Package prover calls the remote zero-knowledge proving service. The proof
// object is opaque to this system: claims go in, a proof comes out, and the
// proof is only valid for the exact inputs that produced it.
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	errs "github.com/cryptodash/zklogin/internal/errors"
)

const defaultTimeout = 30 * time.Second

// Request carries the proof inputs, mirroring the prover's wire format.
type Request struct {
	JWT                        string `json:"jwt"`
	ExtendedEphemeralPublicKey string `json:"extendedEphemeralPublicKey"`
	MaxEpoch                   string `json:"maxEpoch"`
	JWTRandomness              string `json:"jwtRandomness"`
	Salt                       string `json:"salt"`
	KeyClaimName               string `json:"keyClaimName"`
}

// ProofPoints are the Groth16 proof elements.
type ProofPoints struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

// IssBase64Details locates the issuer claim inside the base64 token body.
type IssBase64Details struct {
	Value     string `json:"value"`
	IndexMod4 int    `json:"indexMod4"`
}

// Proof is the prover's response, passed through opaquely.
type Proof struct {
	ProofPoints      ProofPoints      `json:"proofPoints"`
	IssBase64Details IssBase64Details `json:"issBase64Details"`
	HeaderBase64     string           `json:"headerBase64"`
}

// Client is an HTTP client for the proving service.
type Client struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a prover client for the given endpoint.
func NewClient(proverURL string, options ...Option) *Client {
	c := &Client{
		url:  proverURL,
		http: &http.Client{Timeout: defaultTimeout},
		log:  log.With().Str("component", "prover").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Prove submits the proof inputs and returns the proof. A 4xx response means
// the prover rejected the claims themselves (ErrProofRejected, not worth
// retrying); transport failures and 5xx responses map to
// ErrNetworkUnavailable so the caller may retry once.
func (c *Client) Prove(ctx context.Context, request Request) (*Proof, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errs.Wrapf(err, "[Client.Prove] marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrapf(err, "[Client.Prove] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.Prove] %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn().Int("status", resp.StatusCode).Msg("prover rejected request")
		return nil, errs.Wrapf(errs.ErrProofRejected, "[Client.Prove] status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	default:
		return nil, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.Prove] prover returned %d", resp.StatusCode)
	}

	var proof Proof
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		return nil, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.Prove] decode response: %v", err)
	}
	return &proof, nil
}
