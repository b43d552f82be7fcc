// Package ledger reads the target network state needed to bound a login
// attempt: the current epoch. The fullnode speaks JSON-RPC 2.0.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	errs "github.com/cryptodash/zklogin/internal/errors"
)

const (
	systemStateMethod = "suix_getLatestSuiSystemState"
	defaultTimeout    = 10 * time.Second
)

// Client queries a fullnode over JSON-RPC.
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

// NewClient creates a fullnode client for the given RPC URL.
func NewClient(fullnodeURL string, options ...Option) *Client {
	c := &Client{
		url:  fullnodeURL,
		http: &http.Client{Timeout: defaultTimeout},
		log:  log.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type systemStateResponse struct {
	Result *struct {
		Epoch string `json:"epoch"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// CurrentEpoch returns the network's current epoch number. Any transport or
// protocol failure maps to ErrNetworkUnavailable: the caller cannot start a
// flow without an epoch and there is nothing finer-grained to act on.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  systemStateMethod,
		Params:  []any{},
	})
	if err != nil {
		return 0, errs.Wrapf(err, "[Client.CurrentEpoch] marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, errs.Wrapf(err, "[Client.CurrentEpoch] build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.CurrentEpoch] %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.CurrentEpoch] fullnode returned %d", resp.StatusCode)
	}

	var decoded systemStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.CurrentEpoch] decode response: %v", err)
	}
	if decoded.Error != nil {
		return 0, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.CurrentEpoch] rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if decoded.Result == nil {
		return 0, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.CurrentEpoch] empty result")
	}

	epoch, err := strconv.ParseUint(decoded.Result.Epoch, 10, 64)
	if err != nil {
		return 0, errs.Wrapf(errs.ErrNetworkUnavailable, "[Client.CurrentEpoch] bad epoch %q", decoded.Result.Epoch)
	}

	c.log.Debug().Uint64("epoch", epoch).Msg("fetched current epoch")
	return epoch, nil
}
