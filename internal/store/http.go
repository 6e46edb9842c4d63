package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP is a Store client for the kvchaos HTTP store server.
//
// Keys are binary (they carry a fixed-width identity suffix), so they travel
// base64url-encoded in the URL path:
//
//	GET    /kv/{key}  -> 200 value bytes | 404 absent
//	PUT    /kv/{key}  -> 204, body is the value
//	DELETE /kv/{key}  -> 204 (idempotent)
//
// Any transport failure or unexpected status is returned as an error and
// treated as transient by the caller's retry budget.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates a client for the server at baseURL. A nil httpClient gets
// a default with a 10-second timeout.
func NewHTTP(baseURL string, httpClient *http.Client) *HTTP {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{baseURL: baseURL, client: httpClient}
}

// EncodeKey returns the URL-safe form of a binary key.
func EncodeKey(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func (s *HTTP) keyURL(key []byte) string {
	return s.baseURL + "/kv/" + EncodeKey(key)
}

func (s *HTTP) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.keyURL(key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		val, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("get: read body: %w", err)
		}
		return val, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpectedStatus("get", resp)
	}
}

func (s *HTTP) Put(ctx context.Context, key, val []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.keyURL(key), bytes.NewReader(val))
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return unexpectedStatus("put", resp)
	}
	return nil
}

func (s *HTTP) Delete(ctx context.Context, key []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.keyURL(key), nil)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return unexpectedStatus("delete", resp)
	}
	return nil
}

func unexpectedStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}
