// Package client is the Go SDK for the KV cluster's public surface.
//
// The client talks to a single node; that node coordinates replication and
// quorums on its behalf. No distributed logic lives here — just typed
// requests, and multi-version responses surfaced as-is, because a read can
// legitimately return several siblings and the application has to decide
// what to do with them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client represents a connection to one KV node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. Never call the network without a timeout — zero
// selects a 10 s default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Version is one sibling returned by a read.
type Version struct {
	Value       json.RawMessage   `json:"value"`
	VectorClock map[string]uint64 `json:"vector_clock"`
	Deleted     bool              `json:"deleted,omitempty"`
}

// QuorumOptions overrides the server's default N/R/W for one request.
// Nil fields keep the server defaults.
type QuorumOptions struct {
	N *int
	R *int
	W *int
}

// Put stores value under key. value must be valid JSON.
// ErrQuorumNotMet means the cluster could not reach its write quorum; the
// write may still exist on some replicas.
func (c *Client) Put(ctx context.Context, key string, value json.RawMessage, opts QuorumOptions) error {
	payload := map[string]any{"value": value}
	if opts.N != nil {
		payload["N"] = *opts.N
	}
	if opts.W != nil {
		payload["W"] = *opts.W
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrQuorumNotMet
	}
	return checkStatus(resp)
}

// Get retrieves the surviving versions for key. An empty slice means the
// key is absent or deleted (or the read quorum was missed — the server
// does not distinguish).
func (c *Client) Get(ctx context.Context, key string, opts QuorumOptions) ([]Version, error) {
	url := fmt.Sprintf("%s/kv/%s", c.baseURL, key)
	sep := "?"
	if opts.R != nil {
		url += fmt.Sprintf("%sR=%d", sep, *opts.R)
		sep = "&"
	}
	if opts.N != nil {
		url += fmt.Sprintf("%sN=%d", sep, *opts.N)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Versions []Version `json:"versions"`
	}
	return result.Versions, json.NewDecoder(resp.Body).Decode(&result)
}

// Delete removes key cluster-wide. Internally the server writes a
// tombstone and replicates it like any other write.
func (c *Client) Delete(ctx context.Context, key string, opts QuorumOptions) error {
	payload := map[string]any{}
	if opts.N != nil {
		payload["N"] = *opts.N
	}
	if opts.W != nil {
		payload["W"] = *opts.W
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrQuorumNotMet
	}
	return checkStatus(resp)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// ErrQuorumNotMet is returned when the cluster could not assemble the
// required quorum for the operation.
var ErrQuorumNotMet = errors.New("quorum not met")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses into Go errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
