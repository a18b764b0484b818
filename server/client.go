package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/cloudx-io/pullauction/auctionapi"
)

// Client sends requests over a single connection. It is safe for concurrent
// use; requests are sent one at a time.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
}

// Dial connects to a TCP auction server.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, encoder: json.NewEncoder(conn), decoder: json.NewDecoder(conn)}
}

// Do sends req and waits for its response.
func (c *Client) Do(req auctionapi.CallRequest) (auctionapi.CallResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.encoder.Encode(req); err != nil {
		return auctionapi.CallResponse{}, fmt.Errorf("send %s request: %w", req.Type, err)
	}
	var resp auctionapi.CallResponse
	if err := c.decoder.Decode(&resp); err != nil {
		return auctionapi.CallResponse{}, fmt.Errorf("read %s response: %w", req.Type, err)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
