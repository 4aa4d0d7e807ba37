package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/apperr"
)

func fakeDaemon(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int             `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := response{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = &rpcError{Code: rpcErr.Code, Message: rpcErr.Message}
		} else {
			raw, _ := json.Marshal(result)
			resp.Result = raw
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewFromConfig(config.DaemonConfig{URL: url, User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	return c
}

func TestClient_BestBlockHash(t *testing.T) {
	want := strings.Repeat("ab", 32)
	srv := fakeDaemon(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		if method != "getbestblockhash" {
			return nil, &RPCError{Code: -32601, Message: "method not found"}
		}
		return want, nil
	})
	c := newTestClient(t, srv.URL)

	got, err := c.BestBlockHash()
	if err != nil {
		t.Fatalf("BestBlockHash: %v", err)
	}
	if got != want {
		t.Fatalf("BestBlockHash = %q, want %q", got, want)
	}
}

func TestClient_BlockHeader(t *testing.T) {
	srv := fakeDaemon(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		if method != "getblockheader" {
			return nil, &RPCError{Code: -32601, Message: "method not found"}
		}
		return BlockHeaderVerbose{
			Hash:              "abcd",
			PreviousBlockHash: "1234",
			Height:            42,
		}, nil
	})
	c := newTestClient(t, srv.URL)

	h, err := c.BlockHeader("abcd")
	if err != nil {
		t.Fatalf("BlockHeader: %v", err)
	}
	if h.Height != 42 || h.Hash != "abcd" {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	calls := 0
	srv := fakeDaemon(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		calls++
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	c := newTestClient(t, srv.URL)

	_, err := c.BestBlockHash()
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("RPCError should not be retried, got %d calls", calls)
	}
}

func TestClient_ConnectionErrorWrapsSentinel(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1/")
	_, err := c.BestBlockHash()
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !errors.Is(err, apperr.ErrConnection) {
		t.Fatalf("error %v does not wrap apperr.ErrConnection", err)
	}
}

func TestClient_CookieFileParsed(t *testing.T) {
	dir := t.TempDir()
	cookiePath := filepath.Join(dir, "cookie")
	if err := os.WriteFile(cookiePath, []byte("user:pass"), 0600); err != nil {
		t.Fatalf("write cookie: %v", err)
	}

	srv := fakeDaemon(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return "ok", nil
	})
	c, err := NewFromConfig(config.DaemonConfig{URL: srv.URL, CookiePath: cookiePath})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if c.user != "user" || c.password != "pass" {
		t.Fatalf("cookie not parsed: user=%q password=%q", c.user, c.password)
	}
}
