// Package notion is the remote store client: it creates, patches and
// archives task pages in a Notion database.
//
// Requests go through github.com/jomei/notionapi. Property names are a
// fixed schema dependency on the target database and are configured
// through Schema.
package notion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/robsonferreira/tasksync/internal/task"
)

const (
	// DefaultBaseURL is the public Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com"

	// DefaultVersion is the Notion-Version header the property payloads are
	// written against.
	DefaultVersion = "2022-06-28"

	// DefaultTimeout bounds every request, including creates.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrMissingToken is returned by NewClient without an integration token.
	ErrMissingToken = errors.New("notion token is required")

	// ErrMissingDatabaseID is returned by NewClient without a database id.
	ErrMissingDatabaseID = errors.New("notion database id is required")
)

// Schema names the database properties tasks are written to.
type Schema struct {
	Title    string `mapstructure:"title" yaml:"title"`
	Status   string `mapstructure:"status" yaml:"status"`
	Priority string `mapstructure:"priority" yaml:"priority"`
}

// DefaultSchema matches the task board template the database was built from.
func DefaultSchema() Schema {
	return Schema{
		Title:    "Tarefa",
		Status:   "Status",
		Priority: "Prioridade",
	}
}

// Config configures a Client.
type Config struct {
	Token      string
	DatabaseID string
	BaseURL    string
	Version    string
	Timeout    time.Duration
	Schema     Schema

	// HTTPClient supplies the base transport (default: http.DefaultTransport).
	// Its timeout is replaced by Timeout.
	HTTPClient *http.Client

	// Logger for request activity (default: stderr logger)
	Logger *log.Logger
}

// Client talks to the Notion pages API.
type Client struct {
	api        *notionapi.Client
	databaseID notionapi.DatabaseID
	schema     Schema
	logger     *log.Logger
}

// NewClient validates cfg and builds a client. Every request, creates
// included, is bounded by cfg.Timeout and is never retried.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.DatabaseID == "" {
		return nil, ErrMissingDatabaseID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Schema == (Schema{}) {
		cfg.Schema = DefaultSchema()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[notion] ", log.LstdFlags)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid notion base url %q", cfg.BaseURL)
	}

	next := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		next = cfg.HTTPClient.Transport
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &endpointTransport{base: base, version: cfg.Version, next: next},
	}

	api := notionapi.NewClient(
		notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(httpClient),
		notionapi.WithRetry(0),
	)

	return &Client{
		api:        api,
		databaseID: notionapi.DatabaseID(cfg.DatabaseID),
		schema:     cfg.Schema,
		logger:     cfg.Logger,
	}, nil
}

// CreatePage creates a page for the given fields in the configured database
// and returns its id.
func (c *Client) CreatePage(ctx context.Context, f task.Fields) (string, error) {
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.databaseID,
		},
		Properties: c.schema.Properties(f),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	if page.ID == "" {
		return "", fmt.Errorf("failed to create page: response carried no page id")
	}

	c.logger.Printf("Created page %s (%s)", page.ID, f.Title)
	return page.ID.String(), nil
}

// PatchPage overwrites the task properties of an existing page.
func (c *Client) PatchPage(ctx context.Context, pageID string, f task.Fields) error {
	_, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: c.schema.Properties(f),
	})
	if err != nil {
		return fmt.Errorf("failed to patch page %s: %w", pageID, err)
	}

	c.logger.Printf("Patched page %s", pageID)
	return nil
}

// ArchivePage soft-deletes a page. Archiving a page that is already
// archived succeeds.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	_, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	})
	if err == nil {
		c.logger.Printf("Archived page %s", pageID)
		return nil
	}

	// Notion rejects edits to archived pages; confirm the terminal state
	// before reporting failure.
	if StatusCode(err) == http.StatusBadRequest {
		page, getErr := c.GetPage(ctx, pageID)
		if getErr == nil && page.Archived {
			c.logger.Printf("Page %s was already archived", pageID)
			return nil
		}
	}
	return fmt.Errorf("failed to archive page %s: %w", pageID, err)
}

// GetPage retrieves a page.
func (c *Client) GetPage(ctx context.Context, pageID string) (*notionapi.Page, error) {
	page, err := c.api.Page.Get(ctx, notionapi.PageID(pageID))
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", pageID, err)
	}
	return page, nil
}

// StatusCode returns the HTTP status of a Notion API error, or 0 when err
// did not come from a Notion response.
func StatusCode(err error) int {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// endpointTransport points requests at the configured base URL and pins the
// Notion-Version header.
type endpointTransport struct {
	base    *url.URL
	version string
	next    http.RoundTripper
}

func (t *endpointTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = t.base.Path + req.URL.Path
	out.URL.RawPath = ""
	out.Host = t.base.Host
	out.Header.Set("Notion-Version", t.version)
	return t.next.RoundTrip(out)
}
