// Package confapi talks to the conference REST API.
//
// It only knows about the wire: paths, query parameters, headers, and how
// responses decode into [conference] values. What to do with the results is
// up to the caller.
package confapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	cserrs "github.com/jdholdren/confsync/internal/errors"
)

type (
	// Client is a typed wrapper around the conference API.
	Client struct {
		baseURL    string
		httpClient *http.Client
		appVersion string
		device     string
		tokens     oauth2.TokenSource
	}

	// Config holds all of the options for making a client.
	Config struct {
		// Including the api prefix, e.g. https://host/api
		BaseURL    string
		AppVersion string
		Device     string
		Timeout    time.Duration

		// Supplies the bearer token of the logged in user, if any.
		Tokens oauth2.TokenSource
	}
)

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		appVersion: cfg.AppVersion,
		device:     cfg.Device,
		tokens:     cfg.Tokens,
	}
}

// Whether a call has to carry a bearer token.
type auth int

const (
	authOptional auth = iota
	authRequired
)

// do sends a request and decodes a 2xx JSON body into out, if out is non-nil.
//
// Transport failures and non-2xx responses come back as [*cserrs.Error].
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, a auth, out any) error {
	raw, err := c.doRaw(ctx, method, path, query, body, a)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return cserrs.E(http.StatusBadGateway, cserrs.KindServer, fmt.Errorf("error decoding %s response: %w", path, err))
	}

	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any, a auth) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		byts, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(byts)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-App-Version", c.appVersion)
	req.Header.Set("X-Device", c.device)
	req.Header.Set("X-Request-ID", uuid.NewString())

	if err := c.authorize(req, a); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, cserrs.E(0, cserrs.KindTransport, fmt.Errorf("error calling %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cserrs.E(0, cserrs.KindTransport, fmt.Errorf("error reading %s response: %w", path, err))
	}

	slog.DebugContext(ctx, "api call",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, raw)
	}

	return raw, nil
}

func (c *Client) authorize(req *http.Request, a auth) error {
	if c.tokens == nil {
		if a == authRequired {
			return cserrs.E(http.StatusUnauthorized, "no logged in user")
		}
		return nil
	}

	tok, err := c.tokens.Token()
	if err != nil || !tok.Valid() {
		if a == authRequired {
			return cserrs.E(http.StatusUnauthorized, fmt.Errorf("no valid token: %v", err))
		}
		return nil
	}

	tok.SetAuthHeader(req)
	return nil
}

// Pulls whatever message the server put in an error body.
func statusError(status int, raw []byte) *cserrs.Error {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)

	msg := http.StatusText(status)
	for _, m := range []string{body.Message, body.Detail, body.Error} {
		if m != "" {
			msg = m
			break
		}
	}

	e := cserrs.E(status, msg)
	if e.Kind == cserrs.KindServer && msg != http.StatusText(status) {
		e.Details = append(e.Details, cserrs.Detail{Field: "server", Error: msg})
	}
	return e
}
