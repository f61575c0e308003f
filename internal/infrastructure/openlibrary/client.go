package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

const (
	// DefaultBaseURL is the public Open Library host
	DefaultBaseURL = "https://openlibrary.org"

	coversBaseURL = "https://covers.openlibrary.org"

	searchFields = "key,title,subtitle,author_name,publisher,isbn,cover_i"
)

// Client searches Open Library's search.json endpoint
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates an Open Library client. Open Library asks for roughly one
// request per second; requestsPerSecond <= 0 disables the limiter.
func NewClient(baseURL string, requestsPerSecond float64, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: rate.NewLimiter(limit, 1),
		logger:      logging.NewComponentLogger(logger, "openlibrary"),
	}
}

type searchResponse struct {
	NumFound int   `json:"numFound"`
	Docs     []doc `json:"docs"`
}

type doc struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	Subtitle   string   `json:"subtitle"`
	AuthorName []string `json:"author_name"`
	Publisher  []string `json:"publisher"`
	ISBN       []string `json:"isbn"`
	CoverID    int      `json:"cover_i"`
}

// Search runs a free-text query. No hits is an empty slice and a nil error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.CatalogRecord, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("fields", searchFields)
	if limit > 0 {
		params.Add("limit", strconv.Itoa(limit))
	}
	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "BookLens/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("search failed", logging.Int("status", resp.StatusCode), logging.String("query", query))
		return nil, fmt.Errorf("%w: status %d", domain.ErrTransport, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	records := make([]domain.CatalogRecord, 0, len(body.Docs))
	for _, d := range body.Docs {
		if strings.TrimSpace(d.Title) == "" {
			continue
		}
		records = append(records, mapDoc(d))
	}

	c.logger.Debug("search complete",
		logging.String("query", query),
		logging.Int("num_found", body.NumFound),
		logging.Int("records", len(records)),
	)
	return records, nil
}

func mapDoc(d doc) domain.CatalogRecord {
	record := domain.CatalogRecord{
		ID:     d.Key,
		Title:  strings.TrimSpace(d.Title),
		Author: strings.Join(d.AuthorName, ", "),
		ISBN:   pickISBN(d.ISBN),
	}
	if len(d.Publisher) > 0 {
		record.Publisher = d.Publisher[0]
	}
	if d.CoverID > 0 {
		record.CoverImageRef = CoverURL(d.CoverID)
	}
	if d.Key != "" {
		record.LinkURL = DefaultBaseURL + d.Key
	}
	return record
}

// CoverURL returns the large cover image URL for an Open Library cover id
func CoverURL(coverID int) string {
	return fmt.Sprintf("%s/b/id/%d-L.jpg", coversBaseURL, coverID)
}

// pickISBN prefers the first 13-digit ISBN
func pickISBN(isbns []string) string {
	for _, isbn := range isbns {
		if len(isbn) == 13 {
			return isbn
		}
	}
	if len(isbns) > 0 {
		return isbns[0]
	}
	return ""
}
