// Package blobclient speaks the blob-server wire protocol:
// HEAD/GET/PUT/DELETE against content-addressed HTTP servers, with a
// signed authorisation event attached to mutating calls.
//
// Built on github.com/hashicorp/go-retryablehttp for transient/5xx
// retry; an optional S3-compatible backend lives in pkg/blobclient/s3.go.
package blobclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/hasher"
)

// Backend is the blob-server contract satisfied by both
// Client (HTTP blob servers) and S3Backend (direct object storage).
type Backend interface {
	Head(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Put(ctx context.Context, body []byte, auth api.Event) error
	Delete(ctx context.Context, hash string, auth api.Event) error
}

// Client talks to a single blob server base URL.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// New constructs a Client with a bounded exponential-backoff retry
// policy for transient failures.
func New(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: rc}
}

// Head reports whether hash is already present on the server:
// HEAD /<hex-hash> -> 200 present / 404 absent.
func (c *Client) Head(ctx context.Context, hash string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/"+hash, nil)
	if err != nil {
		return false, api.NewError(api.ErrKindMalformed, "blobclient.Head", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, classifyTransportErr("blobclient.Head", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus("blobclient.Head", resp)
	}
}

// Get downloads a blob and verifies its content hash equals the
// requested path hash.
func (c *Client) Get(ctx context.Context, hash string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+hash, nil)
	if err != nil {
		return nil, api.NewError(api.ErrKindMalformed, "blobclient.Get", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr("blobclient.Get", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, api.NewError(api.ErrKindNotFound, "blobclient.Get", fmt.Errorf("blob %s not found", hash))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("blobclient.Get", resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.NewError(api.ErrKindTransient, "blobclient.Get", err)
	}
	got := hasher.Sum256Hex(body)
	if got != hash {
		return nil, api.NewError(api.ErrKindMalformed, "blobclient.Get", fmt.Errorf("content hash %s does not match requested hash %s", got, hash))
	}
	return body, nil
}

// Put uploads a blob with a signed authorisation event attached as a
// base64-JSON authorisation header.
func (c *Client) Put(ctx context.Context, bytesBody []byte, auth api.Event) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/upload", bytes.NewReader(bytesBody))
	if err != nil {
		return api.NewError(api.ErrKindMalformed, "blobclient.Put", err)
	}
	header, err := authHeader(auth)
	if err != nil {
		return api.NewError(api.ErrKindMalformed, "blobclient.Put", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportErr("blobclient.Put", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		return api.NewError(api.ErrKindAuthRequired, "blobclient.Put", fmt.Errorf("blob server returned %d", resp.StatusCode))
	default:
		return unexpectedStatus("blobclient.Put", resp)
	}
}

// Delete removes a blob with a signed delete-authorisation event. A 404
// counts as success, since the blob is already gone either way.
func (c *Client) Delete(ctx context.Context, hash string, auth api.Event) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/"+hash, nil)
	if err != nil {
		return api.NewError(api.ErrKindMalformed, "blobclient.Delete", err)
	}
	header, err := authHeader(auth)
	if err != nil {
		return api.NewError(api.ErrKindMalformed, "blobclient.Delete", err)
	}
	req.Header.Set("Authorization", header)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportErr("blobclient.Delete", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		return nil
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		return api.NewError(api.ErrKindAuthRequired, "blobclient.Delete", fmt.Errorf("blob server returned %d", resp.StatusCode))
	default:
		return unexpectedStatus("blobclient.Delete", resp)
	}
}

// authEventWire is the base64-JSON payload carried in the Authorization
// header: "Nostr <base64 JSON event>".
type authEventWire struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func authHeader(ev api.Event) (string, error) {
	tags := make([][]string, len(ev.Tags))
	for i, t := range ev.Tags {
		tags[i] = []string(t)
	}
	raw, err := json.Marshal(authEventWire{
		ID: ev.ID, PubKey: ev.PubKey, CreatedAt: ev.CreatedAt,
		Kind: int(ev.Kind), Tags: tags, Content: ev.Content, Sig: ev.Sig,
	})
	if err != nil {
		return "", err
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(raw), nil
}

func classifyTransportErr(op string, err error) error {
	return api.NewError(api.ErrKindTransient, op, err)
}

// unexpectedStatus classifies any status outside the explicitly-handled
// set: 5xx and 429 are transient (retried by the executor); every other
// 4xx is a permanent, fatal failure for that (action, target) pair.
func unexpectedStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return api.NewError(api.ErrKindTransient, op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return api.NewError(api.ErrKindMalformed, op, fmt.Errorf("unexpected status %d", resp.StatusCode))
}
