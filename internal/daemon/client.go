// Package daemon is a JSON-RPC client for the tapyrus-family daemon
// this indexer tails: marshal, POST, unmarshal, error-check, with
// daemon authentication and a small retry policy layered on top.
package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tapyrus-index/utxoindexd/config"
	"github.com/tapyrus-index/utxoindexd/internal/apperr"
)

// Client is a JSON-RPC 2.0 HTTP client for a daemon's RPC endpoint.
type Client struct {
	endpoint string
	http     *http.Client

	user       string
	password   string
	cookiePath string
}

// NewFromConfig builds a Client from a daemon config section,
// resolving either a static user/password token or a cookie file.
func NewFromConfig(cfg config.DaemonConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("daemon: empty URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		endpoint:   cfg.URL,
		http:       &http.Client{Timeout: timeout},
		user:       cfg.User,
		password:   cfg.Password,
		cookiePath: cfg.CookiePath,
	}
	if c.cookiePath != "" {
		if err := c.loadCookie(); err != nil {
			return nil, fmt.Errorf("daemon: read cookie file: %w", err)
		}
	}
	return c, nil
}

func (c *Client) loadCookie() error {
	data, err := os.ReadFile(c.cookiePath)
	if err != nil {
		return err
	}
	user, password, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok {
		return fmt.Errorf("malformed cookie file %s", c.cookiePath)
	}
	c.user, c.password = user, password
	return nil
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the daemon responds with a JSON-RPC error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("daemon rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a JSON-RPC method on the daemon and unmarshals the
// result into result (nil discards it). Transient connection failures
// are retried twice with backoff; a cookie-authenticated client that
// gets a 401 reloads the cookie file once and retries, since daemons
// rotate it on restart.
func (c *Client) Call(method string, params, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}
		err := c.call(method, params, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if _, ok := err.(*RPCError); ok {
			return err // daemon spoke; no point retrying a well-formed error
		}
	}
	return apperr.Wrap(apperr.ErrConnection, fmt.Sprintf("daemon call %s", method), lastErr)
}

func (c *Client) call(method string, params, result interface{}) error {
	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.cookiePath != "" {
		if reloadErr := c.loadCookie(); reloadErr == nil {
			httpReq2, _ := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
			httpReq2.Header.Set("Content-Type", "application/json")
			httpReq2.SetBasicAuth(c.user, c.password)
			resp2, err2 := c.http.Do(httpReq2)
			if err2 != nil {
				return fmt.Errorf("http request (after cookie reload): %w", err2)
			}
			defer resp2.Body.Close()
			resp = resp2
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
