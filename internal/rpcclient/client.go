// Package rpcclient is a thin client for the line-delimited JSON-RPC
// 2.0 protocol internal/rpcserver speaks over raw TCP: one request
// per line, one response per line, no framing beyond '\n'. The
// request/response/RPCError shapes and the one-call-per-Call surface
// ride on a persistent TCP connection rather than an HTTP round trip
// per call, matching the protocol the server on the other end speaks.
package rpcclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client holds one TCP connection to an rpcserver.Server instance.
// Call is not safe for concurrent use by multiple goroutines.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	nextID int
}

// New dials addr (host:port) with a 10-second timeout.
func New(addr string) (*Client, error) {
	return NewWithTimeout(addr, 10*time.Second)
}

// NewWithTimeout dials addr with a custom dial timeout.
func NewWithTimeout(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// request is a line-delimited JSON-RPC 2.0 request.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// response is a line-delimited JSON-RPC 2.0 response. Error is a
// plain string, matching internal/rpcserver.Response's wire shape.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RPCError is returned when the server's response carries a non-empty
// error string.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error calling %s: %s", e.Method, e.Message)
}

// Call sends method(params...) and unmarshals the result into result,
// which may be nil to discard it.
func (c *Client) Call(method string, params []interface{}, result interface{}) error {
	c.nextID++
	req := request{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := c.conn.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return &RPCError{Method: method, Message: resp.Error}
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}
