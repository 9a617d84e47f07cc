// Package motion talks to the text-to-motion service.
package motion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/rig"

	"github.com/tidwall/gjson"
)

// APIKeyHeader carries the service key on every request.
const APIKeyHeader = "x-apikey"

var (
	// ErrUpstream wraps every non-success response from the service.
	ErrUpstream = errors.New("motion: upstream error")

	// ErrNoResult is returned when a response lacks a decodable "result".
	ErrNoResult = errors.New("motion: response has no result")
)

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("motion: upstream returned %s", e.Status)
}

// Unwrap makes errors.Is(err, ErrUpstream) hold.
func (e *StatusError) Unwrap() error { return ErrUpstream }

// TargetSkeleton is the skeleton the generated motion is retargeted to.
// WorldMatrix is the model root's world matrix.
type TargetSkeleton struct {
	WorldMatrix [16]float64 `json:"world_matrix"`
	Root        *rig.Node   `json:"root"`
}

// Request is the generate call body.
type Request struct {
	Prompt         string         `json:"prompt"`
	TargetSkeleton TargetSkeleton `json:"target_skeleton"`
}

// Client calls the text-to-motion service. The zero value is not usable; use New.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// New returns a client for the generate endpoint at url. timeout <= 0 means no
// client-side timeout. The API key is passed through unvalidated.
func New(url, apiKey string, timeout time.Duration) *Client {
	return &Client{url: url, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

// Generate asks the service for an animation matching req and decodes the
// nested result. Failures are returned as is and never retried.
func (c *Client) Generate(ctx context.Context, req Request) (*animation.AnimationData, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("motion: encode request: %w", err)
	}

	code, status, resp, err := c.Forward(ctx, body)
	if err != nil {
		return nil, err
	}
	if code < 200 || code > 299 {
		return nil, &StatusError{Code: code, Status: status}
	}
	return DecodeResult(resp)
}

// DecodeResult extracts the JSON-encoded string in the "result" field of a
// service response and decodes it as animation data.
func DecodeResult(resp []byte) (*animation.AnimationData, error) {
	if !gjson.ValidBytes(resp) {
		return nil, fmt.Errorf("%w: invalid json", ErrNoResult)
	}
	result := gjson.GetBytes(resp, "result")
	if !result.Exists() || result.Type != gjson.String {
		return nil, ErrNoResult
	}
	data, err := animation.Decode([]byte(result.Str))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResult, err)
	}
	return data, nil
}

// Forward posts a raw JSON body to the service with the API key and returns
// the upstream status and body untouched.
func (c *Client) Forward(ctx context.Context, body []byte) (code int, status string, resp []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", nil, fmt.Errorf("motion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("motion: request: %w", err)
	}
	defer res.Body.Close()

	resp, err = io.ReadAll(res.Body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("motion: read response: %w", err)
	}
	return res.StatusCode, http.StatusText(res.StatusCode), resp, nil
}
