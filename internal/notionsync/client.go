package notionsync

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond stays under Notion's average limit of three requests per second.
const DefaultRequestsPerSecond = 3

// NotionClient implements NotionService on the jomei/notionapi client.
// Every call waits for the client's rate limiter first.
type NotionClient struct {
	client  *notionapi.Client
	limiter *rate.Limiter
}

// ClientOption configures a NotionClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	rps        float64
	httpClient *http.Client
}

// WithRequestsPerSecond overrides the request rate. Zero or less disables limiting.
func WithRequestsPerSecond(rps float64) ClientOption {
	return func(c *clientConfig) { c.rps = rps }
}

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// NewNotionClient creates a client authenticated with the integration token.
func NewNotionClient(token string, opts ...ClientOption) *NotionClient {
	cfg := clientConfig{rps: DefaultRequestsPerSecond}
	for _, opt := range opts {
		opt(&cfg)
	}

	var apiOpts []notionapi.ClientOption
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, notionapi.WithHTTPClient(cfg.httpClient))
	}

	limit := rate.Inf
	if cfg.rps > 0 {
		limit = rate.Limit(cfg.rps)
	}
	return &NotionClient{
		client:  notionapi.NewClient(notionapi.Token(token), apiOpts...),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// CreatePage adds a page with properties to the database.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}

	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

// UpdatePage overwrites the given properties of a page.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}

	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: page %s: %w", pageID, err)
	}
	return page, nil
}

// QueryDatabase returns one page of database rows.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, query *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}

	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), query)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

// DeletePage archives a page. Notion has no hard delete for pages.
func (n *NotionClient) DeletePage(ctx context.Context, pageID string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("DeletePage: %w", err)
	}

	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("DeletePage: page %s: %w", pageID, err)
	}
	return nil
}

// Ensure NotionClient implements NotionService interface.
var _ NotionService = (*NotionClient)(nil)
