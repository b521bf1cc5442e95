// Package feed implements the upstream builder-fills feed: fetching daily
// compressed CSV snapshots, decompressing them, and parsing them into
// canonical fill records.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// compressionExt is the file extension the feed serves snapshots under.
const compressionExt = ".csv.lz4"

// ClientConfig holds the parameters for the feed HTTP client.
type ClientConfig struct {
	BaseURL        string
	BuilderAddress string
	// DateLayout is the Go reference-time layout for the URL date segment
	// ("2006-01-02" or "20060102" depending on feed version).
	DateLayout     string
	RequestTimeout time.Duration
}

// Client downloads daily fill snapshots from the stats feed. Every call
// performs a network round trip; there is no caching.
type Client struct {
	baseURL        string
	builderAddress string
	dateLayout     string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient creates a feed Client from the given configuration.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		builderAddress: cfg.BuilderAddress,
		dateLayout:     cfg.DateLayout,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger.With(slog.String("component", "feed")),
	}
}

// URL returns the snapshot address for the given YYYY-MM-DD date.
func (c *Client) URL(date string) (string, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("feed: invalid date %q: %w", date, err)
	}
	return fmt.Sprintf("%s/%s/%s%s", c.baseURL, c.builderAddress, d.UTC().Format(c.dateLayout), compressionExt), nil
}

// FetchDay downloads and decompresses one day's snapshot. A 404 means the
// feed has no data for that date (future or unprocessed) and is a valid
// empty result: FetchDay returns ("", false, nil). Any other non-2xx status
// or transport failure returns a *domain.FetchError.
func (c *Client) FetchDay(ctx context.Context, date string) (string, bool, error) {
	url, err := c.URL(date)
	if err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, &domain.FetchError{URL: url, Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, &domain.FetchError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.InfoContext(ctx, "no snapshot for date",
			slog.String("date", date),
		)
		return "", false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false, &domain.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	compressed, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, &domain.FetchError{URL: url, Cause: err}
	}

	text, err := DecompressToText(compressed)
	if err != nil {
		return "", false, err
	}

	c.logger.InfoContext(ctx, "snapshot downloaded",
		slog.String("date", date),
		slog.Int("compressed_bytes", len(compressed)),
		slog.Int("csv_bytes", len(text)),
	)

	return text, true, nil
}
