// Package cli implements the procfleetctl commands: a thin HTTP/WebSocket
// client plus the command handlers that format its responses.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/ryym/procfleet/internal/logrecord"
	"github.com/ryym/procfleet/internal/supervisor"
)

// Client talks to a running procfleetd over HTTP and WebSocket.
type Client struct {
	baseURL string
	apiKey  string
	jwt     string
	http    *http.Client
}

// NewClient creates a client against baseURL (e.g. "http://localhost:8080").
func NewClient(baseURL, apiKey, jwtToken string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		jwt:     jwtToken,
		http:    &http.Client{},
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}
}

// doJSON issues a request with an optional JSON-encoded body.
func (c *Client) doJSON(method, path string, query url.Values, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("cli: encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	resp, err := c.doRaw(method, path, query, reader)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// doRaw issues a request with an arbitrary body reader (or nil).
func (c *Client) doRaw(method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("cli: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cli: request %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cli: %s %s: %s: %s", method, path, resp.Status, string(payload))
	}
	return resp, nil
}

// List returns every known process.
func (c *Client) List() ([]supervisor.Descriptor, error) {
	resp, err := c.doJSON(http.MethodGet, "/procs", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var descriptors []supervisor.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("cli: decode process list: %w", err)
	}
	return descriptors, nil
}

// Create registers a new process, starting it unless start is false.
func (c *Client) Create(name string, command []string, start bool) (*supervisor.Descriptor, error) {
	query := url.Values{"start": {strconv.FormatBool(start)}}
	resp, err := c.doJSON(http.MethodPost, "/procs", query, map[string]any{
		"name":    name,
		"command": command,
	})
	if err != nil {
		return nil, err
	}
	return decodeDescriptor(resp)
}

// Get fetches a single process descriptor.
func (c *Client) Get(name string) (*supervisor.Descriptor, error) {
	resp, err := c.doJSON(http.MethodGet, "/procs/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeDescriptor(resp)
}

// Start starts an existing process.
func (c *Client) Start(name string) (*supervisor.Descriptor, error) {
	resp, err := c.doJSON(http.MethodPost, "/procs/"+url.PathEscape(name)+"/start", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeDescriptor(resp)
}

// Write sends one line to a process's stdin.
func (c *Client) Write(name, line string) error {
	resp, err := c.doRaw(http.MethodPost, "/procs/"+url.PathEscape(name)+"/write", nil, strings.NewReader(line))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Tail fetches up to n buffered records.
func (c *Client) Tail(name string, n int, includeStderr bool) ([]logrecord.Record, error) {
	query := url.Values{
		"n":              {strconv.Itoa(n)},
		"include_stderr": {strconv.FormatBool(includeStderr)},
	}
	resp, err := c.doJSON(http.MethodGet, "/procs/"+url.PathEscape(name)+"/tail", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var records []logrecord.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("cli: decode tail response: %w", err)
	}
	return records, nil
}

// Stop stops a process.
func (c *Client) Stop(name string, kill bool) (*supervisor.Descriptor, error) {
	query := url.Values{"kill": {strconv.FormatBool(kill)}}
	resp, err := c.doJSON(http.MethodPost, "/procs/"+url.PathEscape(name)+"/stop", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeDescriptor(resp)
}

// Restart restarts a process.
func (c *Client) Restart(name string, killExisting, clearLogs bool) (*supervisor.Descriptor, error) {
	query := url.Values{
		"kill_existing": {strconv.FormatBool(killExisting)},
		"clear_logs":    {strconv.FormatBool(clearLogs)},
	}
	resp, err := c.doJSON(http.MethodPost, "/procs/"+url.PathEscape(name)+"/restart", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeDescriptor(resp)
}

// Delete removes an exited process from the registry.
func (c *Client) Delete(name string) error {
	_, err := c.doJSON(http.MethodDelete, "/procs/"+url.PathEscape(name), nil, nil)
	return err
}

// StreamTail opens the tail-stream WebSocket and invokes onRecord for every
// record received (replay backlog, then live) until the connection closes
// or stop is closed.
func (c *Client) StreamTail(name string, n int, stop <-chan struct{}, onRecord func(logrecord.Record)) error {
	wsURL, err := c.websocketURL("/procs/"+url.PathEscape(name)+"/tail-stream", url.Values{
		"n": {strconv.Itoa(n)},
	})
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("cli: dial tail-stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var rec logrecord.Record
			if err := json.Unmarshal(payload, &rec); err != nil {
				continue
			}
			onRecord(rec)
		}
	}()

	select {
	case <-done:
		return nil
	case <-stop:
		return nil
	}
}

func (c *Client) websocketURL(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("cli: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	if c.jwt != "" {
		query.Set("jwt_token", c.jwt)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func decodeDescriptor(resp *http.Response) (*supervisor.Descriptor, error) {
	defer resp.Body.Close()
	var d supervisor.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("cli: decode descriptor: %w", err)
	}
	return &d, nil
}
