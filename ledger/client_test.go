package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	errs "github.com/cryptodash/zklogin/internal/errors"
	"github.com/cryptodash/zklogin/ledger"
)

func TestClient_CurrentEpoch(t *testing.T) {
	t.Run("parses epoch from system state", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "suix_getLatestSuiSystemState", req["method"])
			require.Equal(t, "2.0", req["jsonrpc"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"epoch":"412"}}`))
		}))
		defer srv.Close()

		epoch, err := ledger.NewClient(srv.URL).CurrentEpoch(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(412), epoch)
	})

	t.Run("unreachable fullnode", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse connections

		_, err := ledger.NewClient(srv.URL).CurrentEpoch(context.Background())
		require.ErrorIs(t, err, errs.ErrNetworkUnavailable)
	})

	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := ledger.NewClient(srv.URL).CurrentEpoch(context.Background())
		require.ErrorIs(t, err, errs.ErrNetworkUnavailable)
	})

	t.Run("rpc error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
		}))
		defer srv.Close()

		_, err := ledger.NewClient(srv.URL).CurrentEpoch(context.Background())
		require.ErrorIs(t, err, errs.ErrNetworkUnavailable)
	})

	t.Run("malformed epoch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"epoch":"???"}}`))
		}))
		defer srv.Close()

		_, err := ledger.NewClient(srv.URL).CurrentEpoch(context.Background())
		require.ErrorIs(t, err, errs.ErrNetworkUnavailable)
	})
}
