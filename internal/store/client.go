// internal/store/client.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/blockhaus/blockhaus/internal/protocol"
)

// ErrUnavailable is returned when the store server cannot be reached.
var ErrUnavailable = errors.New("Database server unavailable.")

// Client talks to a store server. Each request dials a fresh connection,
// exchanges one envelope, and hangs up, so a Client is safe for concurrent
// use and never holds the store hostage between calls.
type Client struct {
	addr   string
	dialer net.Dialer
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Do performs one raw store request and returns the response data payload.
// Store-level failures come back as errors carrying the server's errorMsg.
func (c *Client) Do(ctx context.Context, collection, action string, data any) (json.RawMessage, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, ErrUnavailable
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := struct {
		Collection string `json:"collection"`
		Action     string `json:"action"`
		Data       any    `json:"data"`
	}{collection, action, data}

	if err := protocol.WriteMessage(conn, req); err != nil {
		return nil, fmt.Errorf("db request failed: %w", err)
	}
	var resp protocol.RawResponse
	if err := protocol.ReadMessage(conn, &resp); err != nil {
		return nil, fmt.Errorf("db response failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Create inserts data into collection and returns the stored document.
func (c *Client) Create(ctx context.Context, collection string, data Document) (Document, error) {
	return c.doDocument(ctx, collection, "create", data)
}

// Read fetches one document by id.
func (c *Client) Read(ctx context.Context, collection, id string) (Document, error) {
	return c.doDocument(ctx, collection, "read", Document{"id": id})
}

// Update merges data into the document with the given id.
func (c *Client) Update(ctx context.Context, collection, id string, data Document) (Document, error) {
	payload := make(Document, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["id"] = id
	return c.doDocument(ctx, collection, "update", payload)
}

// Delete removes the document with the given id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.doDocument(ctx, collection, "delete", Document{"id": id})
	return err
}

// Query returns all documents matching the equality filter. A nil filter
// returns the whole collection.
func (c *Client) Query(ctx context.Context, collection string, filter Document) ([]Document, error) {
	if filter == nil {
		filter = Document{}
	}
	raw, err := c.Do(ctx, collection, "query", filter)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("db query decode failed: %w", err)
	}
	return docs, nil
}

func (c *Client) doDocument(ctx context.Context, collection, action string, data Document) (Document, error) {
	raw, err := c.Do(ctx, collection, action, data)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("db %s decode failed: %w", action, err)
	}
	return doc, nil
}
