// Package memos talks to an external Memos-compatible note store. The
// reconciler depends only on the API interface; Client is the HTTP
// implementation.
package memos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
)

// RemoteNote is one note as the remote store reports it. RemoteID is the
// provider-stable identifier with any resource-path prefix stripped.
type RemoteNote struct {
	RemoteID  string
	Content   string
	UpdatedAt time.Time
	Deleted   bool
}

// API is the narrow surface the reconciler needs from a remote note store.
// The remote's clock is a hint at best; reconciliation never compares it
// against local clocks.
type API interface {
	ListAll(ctx context.Context) ([]RemoteNote, error)
	Create(ctx context.Context, content string) (*RemoteNote, error)
	Update(ctx context.Context, remoteID, content string) (*RemoteNote, error)
	Delete(ctx context.Context, remoteID string) error
}

// Client is the Memos HTTP API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewClient creates a Memos API client.
func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = logger.ComponentLogger("memos")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  log,
	}
}

// memo is the wire shape of one remote note. Name is the resource path
// ("memos/<id>"); State is "NORMAL" or "ARCHIVED".
type memo struct {
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	State      string    `json:"state"`
	UpdateTime time.Time `json:"updateTime"`
}

type memoPage struct {
	Memos         []memo `json:"memos"`
	NextPageToken string `json:"nextPageToken"`
}

func (m memo) toRemote() RemoteNote {
	return RemoteNote{
		RemoteID:  strings.TrimPrefix(m.Name, "memos/"),
		Content:   m.Content,
		UpdatedAt: m.UpdateTime,
		Deleted:   m.State == "ARCHIVED",
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "memos rate limit wait")
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode memos request")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "build memos request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "memos %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(errors.ErrNotFound, "memos %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("memos %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode memos response")
	}
	return nil
}

// ListAll pages through every remote note.
func (c *Client) ListAll(ctx context.Context) ([]RemoteNote, error) {
	var notes []RemoteNote
	pageToken := ""
	for {
		path := "/api/v1/memos?pageSize=200"
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page memoPage
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Memos {
			notes = append(notes, m.toRemote())
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	c.logger.Debugw("listed remote notes", logger.FieldCount, len(notes))
	return notes, nil
}

// Create writes a new remote note and returns it.
func (c *Client) Create(ctx context.Context, content string) (*RemoteNote, error) {
	var created memo
	err := c.do(ctx, http.MethodPost, "/api/v1/memos",
		map[string]string{"content": content}, &created)
	if err != nil {
		return nil, err
	}
	remote := created.toRemote()
	return &remote, nil
}

// Update replaces the content of an existing remote note.
func (c *Client) Update(ctx context.Context, remoteID, content string) (*RemoteNote, error) {
	var updated memo
	path := fmt.Sprintf("/api/v1/memos/%s", url.PathEscape(remoteID))
	err := c.do(ctx, http.MethodPatch, path,
		map[string]string{"content": content}, &updated)
	if err != nil {
		return nil, err
	}
	remote := updated.toRemote()
	return &remote, nil
}

// Delete removes a remote note. Deleting an already-missing note is not
// an error.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	path := fmt.Sprintf("/api/v1/memos/%s", url.PathEscape(remoteID))
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.IsNotFoundError(err) {
		return nil
	}
	return err
}
