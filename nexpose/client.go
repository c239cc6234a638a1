// Package nexpose is a client for the vulnerability-management console's
// XML API v1.1 and JSON API v3. It owns session handling: callers never
// see a session id, and an expired session is re-established and the
// request replayed exactly once.
package nexpose

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/grafana/dskit/backoff"
)

const xmlEndpoint = "/api/1.1/xml"

// sessionCookie is how the JSON API identifies the session.
const sessionCookie = "nexposeCCSessionID"

// Options configures a console client.
type Options struct {
	BaseURL  string
	Username string
	Password string
	// InsecureSkipVerify disables TLS verification. Lab consoles run with
	// self-signed certificates, so this is the common case outside prod.
	InsecureSkipVerify bool
	Timeout            time.Duration
	MaxRetries         int
	RetryInterval      time.Duration
}

// Client talks to one console. It is safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	hc       *http.Client
	retry    backoff.Config

	mu        sync.Mutex
	sessionID string
}

// NewClient builds a client from options. No connection is made until the
// first call.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify} // #nosec G402

	interval := opts.RetryInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = 3
	}

	return &Client{
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		username: opts.Username,
		password: opts.Password,
		hc:       &http.Client{Timeout: timeout, Transport: transport},
		retry: backoff.Config{
			MinBackoff: interval,
			MaxBackoff: interval,
			MaxRetries: retries,
		},
	}
}

// Login opens a session. Most callers can skip this: every call logs in
// lazily. It exists so the harness can fail fast on bad credentials.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.session(ctx, true)
	return err
}

// Logout closes the session on the console. Errors are reported but the
// local session is dropped regardless.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if sess == "" {
		return nil
	}
	var resp struct {
		XMLName xml.Name `xml:"LogoutResponse"`
		Success string   `xml:"success,attr"`
	}
	body, err := c.postXML(ctx, logoutRequest{SessionID: sess})
	if err != nil {
		return err
	}
	return decodeXMLResponse("logout", body, &resp, &resp.Success)
}

// session returns the current session id, logging in when there is none or
// when force is set.
func (c *Client) session(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" && !force {
		return c.sessionID, nil
	}

	body, err := c.postXML(ctx, loginRequest{UserID: c.username, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	var resp loginResponse
	if err := decodeXMLResponse("login", body, &resp, &resp.Success); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &APIError{Op: "login", Message: "no session id in response"}
	}
	c.sessionID = resp.SessionID
	return c.sessionID, nil
}

func (c *Client) invalidateSession(old string) {
	c.mu.Lock()
	if c.sessionID == old {
		c.sessionID = ""
	}
	c.mu.Unlock()
}

// callXML runs one logical XML API call: inject the session, post, and on
// an auth-expiry signal re-login once and replay.
func (c *Client) callXML(ctx context.Context, op string, build func(session string) any, out any, success *string) error {
	sess, err := c.session(ctx, false)
	if err != nil {
		return err
	}

	body, err := c.postXML(ctx, build(sess))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if sessionExpired(body) {
		log.Printf("session expired during %s, re-authenticating", op)
		c.invalidateSession(sess)
		sess, err = c.session(ctx, false)
		if err != nil {
			return err
		}
		body, err = c.postXML(ctx, build(sess))
		if err != nil {
			return fmt.Errorf("%s (replay): %w", op, err)
		}
		if sessionExpired(body) {
			return &APIError{Op: op, Message: "session expired again after re-authentication"}
		}
	}

	return decodeXMLResponse(op, body, out, success)
}

// postXML marshals req and posts it to the XML endpoint, retrying transient
// transport failures with the configured linear backoff.
func (c *Client) postXML(ctx context.Context, req any) ([]byte, error) {
	payload, err := xml.Marshal(req)
	if err != nil {
		return nil, err
	}
	payload = append([]byte(xml.Header), payload...)

	body, status, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+xmlEndpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "text/xml")
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && !authExpiredStatus(status) {
		return nil, fmt.Errorf("xml api returned status %d", status)
	}
	if status != http.StatusOK {
		// Surface the expiry to the caller via a synthetic failure body so
		// callXML replays it.
		return []byte(`<Failure><Message>Invalid session ID</Message></Failure>`), nil
	}
	return body, nil
}

// callJSON runs one logical JSON API call with the same expiry-and-replay
// contract as callXML.
func (c *Client) callJSON(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	sess, err := c.session(ctx, false)
	if err != nil {
		return nil, err
	}

	body, status, err := c.doJSON(ctx, method, path, payload, sess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if authExpired(status, body) {
		log.Printf("session expired during %s, re-authenticating", op)
		c.invalidateSession(sess)
		sess, err = c.session(ctx, false)
		if err != nil {
			return nil, err
		}
		body, status, err = c.doJSON(ctx, method, path, payload, sess)
		if err != nil {
			return nil, fmt.Errorf("%s (replay): %w", op, err)
		}
		if authExpired(status, body) {
			return nil, &APIError{Op: op, Message: "session expired again after re-authentication"}
		}
	}

	if status < 200 || status > 299 {
		return nil, &APIError{Op: op, Message: fmt.Sprintf("status %d: %s", status, truncate(body, 200))}
	}
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload []byte, session string) ([]byte, int, error) {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
		return httpReq, nil
	})
}

// doWithRetry performs the request, retrying network errors and gateway
// errors. Requests are rebuilt per attempt so the body reader is fresh.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) ([]byte, int, error) {
	var lastErr error
	boff := backoff.New(ctx, c.retry)
	for boff.Ongoing() {
		req, err := build()
		if err != nil {
			return nil, 0, err
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			boff.Wait()
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			boff.Wait()
			continue
		}
		if resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable {
			lastErr = fmt.Errorf("console unavailable (status %d)", resp.StatusCode)
			boff.Wait()
			continue
		}
		return body, resp.StatusCode, nil
	}
	if lastErr == nil {
		lastErr = boff.Err()
	}
	return nil, 0, fmt.Errorf("giving up after %d attempts: %w", boff.NumRetries(), lastErr)
}

// get fetches a raw resource (report downloads) under the session.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	sess, err := c.session(ctx, false)
	if err != nil {
		return nil, err
	}
	body, status, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		httpReq.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess})
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}
	// A 200 body here is the report itself; only the status speaks to
	// session health.
	if authExpiredStatus(status) {
		c.invalidateSession(sess)
		sess, err = c.session(ctx, false)
		if err != nil {
			return nil, err
		}
		body, status, err = c.doWithRetry(ctx, func() (*http.Request, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return nil, err
			}
			httpReq.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess})
			return httpReq, nil
		})
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", path, status)
	}
	return body, nil
}

// authExpiryMarkers are the substrings the console uses to report a dead
// session, across both API generations.
var authExpiryMarkers = []string{
	"Invalid session ID",
	"session not found",
	"Session is not valid",
	"LoginRequired",
	"AuthenticationException",
	"unauthorized",
}

func containsExpiryMarker(s string) bool {
	for _, marker := range authExpiryMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func authExpiredStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// authExpired classifies a JSON response as a dead session: the status
// codes always, body markers only on error responses. A 2xx body is
// payload, and benchmark content legitimately contains words like
// "unauthorized".
func authExpired(status int, body []byte) bool {
	if authExpiredStatus(status) {
		return true
	}
	if status >= 200 && status < 300 {
		return false
	}
	return containsExpiryMarker(string(body))
}

// sessionExpired reports whether an XML response is a Failure envelope
// carrying one of the dead-session messages. Markers are only trusted
// inside the envelope.
func sessionExpired(body []byte) bool {
	msg, failed := extractFailure(body)
	return failed && containsExpiryMarker(msg)
}

// decodeXMLResponse unmarshals body into out and folds the two failure
// channels (success="0" attribute, Failure envelope) into one error.
func decodeXMLResponse(op string, body []byte, out any, success *string) error {
	if msg, failed := extractFailure(body); failed {
		return &APIError{Op: op, Message: msg}
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if success != nil && *success != "1" {
		return &APIError{Op: op, Message: "success=" + *success}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
