package notionsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// Notion allows an average of three requests per second per integration.
const (
	defaultRequestRate = rate.Limit(3)
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
)

// NotionClient implements NotionService with github.com/jomei/notionapi.
// Requests are paced to the integration rate limit, and rate-limited or
// transient server errors are retried with a linear backoff.
type NotionClient struct {
	client      *notionapi.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

// ClientOption configures a NotionClient.
type ClientOption func(*NotionClient)

// WithRequestRate overrides the request pacing.
func WithRequestRate(r rate.Limit, burst int) ClientOption {
	return func(n *NotionClient) {
		n.limiter = rate.NewLimiter(r, burst)
	}
}

// WithRetries sets how many times a request is attempted and the base
// delay between attempts.
func WithRetries(attempts int, backoff time.Duration) ClientOption {
	return func(n *NotionClient) {
		if attempts > 0 {
			n.maxAttempts = attempts
		}
		n.backoff = backoff
	}
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string, opts ...ClientOption) *NotionClient {
	n := &NotionClient{
		client:      notionapi.NewClient(notionapi.Token(token)),
		limiter:     rate.NewLimiter(defaultRequestRate, 1),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CreatePage adds one subscription row to the export database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	var page *notionapi.Page
	err := n.call(ctx, func() error {
		var err error
		page, err = n.client.Page.Create(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

// UpdatePage rewrites the properties of an exported row.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageUpdateRequest{
		Properties: properties,
	}

	var page *notionapi.Page
	err := n.call(ctx, func() error {
		var err error
		page, err = n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: page %s: %w", pageID, err)
	}
	return page, nil
}

// QueryDatabase fetches one page of rows from the export database.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	var resp *notionapi.DatabaseQueryResponse
	err := n.call(ctx, func() error {
		var err error
		resp, err = n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

// ArchivePage moves a row whose subscription is no longer in the latest
// analysis to the trash.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	req := &notionapi.PageUpdateRequest{
		Archived: true,
	}

	err := n.call(ctx, func() error {
		_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
	if err != nil {
		return fmt.Errorf("ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}

// call waits for the limiter and runs fn, retrying retryable API errors.
func (n *NotionClient) call(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if werr := n.limiter.Wait(ctx); werr != nil {
			return werr
		}
		err = fn()
		if err == nil || !retryable(err) || attempt == n.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * n.backoff):
		}
	}
	return err
}

func retryable(err error) bool {
	var apiErr *notionapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusConflict, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
