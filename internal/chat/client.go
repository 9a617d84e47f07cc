// Package chat relays messages to the chat service.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// MinMotionLength is the shortest motion description worth animating.
const MinMotionLength = 3

// ErrUpstream wraps every non-success response from the chat service.
var ErrUpstream = errors.New("chat: upstream error")

// StatusError is a non-2xx response from the chat service.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat: upstream returned %s", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// Message is what the user says. Thought and Motion are sent empty by the browser.
type Message struct {
	Language         string   `json:"language"`
	MyNameIs         string   `json:"my_name_is"`
	Answer           string   `json:"answer"`
	Emotion          string   `json:"emotion"`
	Thought          string   `json:"thought"`
	Motion           string   `json:"motion"`
	AssociationWords []string `json:"association_words"`
}

// Reply is the avatar's answer. Motion describes a gesture to animate.
type Reply struct {
	MyNameIs string `json:"my_name_is"`
	Emotion  string `json:"emotion"`
	Answer   string `json:"answer"`
	Motion   string `json:"motion"`
	Error    string `json:"error,omitempty"`
}

// WantsMotion reports whether the reply's motion should be requested.
func (r *Reply) WantsMotion() bool {
	return r != nil && utf8.RuneCountInString(r.Motion) >= MinMotionLength
}

// Client posts messages to the chat endpoint.
type Client struct {
	url  string
	http *http.Client
}

// New returns a client for url. timeout <= 0 means no client-side timeout.
func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Send relays msg and decodes the reply. Empty association words are sent as
// [""] like the browser client does.
func (c *Client) Send(ctx context.Context, msg Message) (*Reply, error) {
	if msg.AssociationWords == nil {
		msg.AssociationWords = []string{""}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("chat: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, Status: http.StatusText(res.StatusCode)}
	}

	var reply Reply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("chat: decode reply: %w", err)
	}
	return &reply, nil
}
