package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/pkg/models"
)

const maxBodyBytes = 4 << 20 // 4 MiB per fetched page

// webSourceConfig is the expected shape of a web source's config document.
type webSourceConfig struct {
	URLs []string `json:"urls"`
}

// HTTPExtractor fetches web sources over plain HTTP.
type HTTPExtractor struct {
	client    *http.Client
	userAgent string
}

// NewHTTPExtractor creates an HTTPExtractor from extraction config.
func NewHTTPExtractor(cfg config.ExtractConfig) *HTTPExtractor {
	return &HTTPExtractor{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		userAgent: cfg.UserAgent,
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, source *models.Source) ([]Item, error) {
	var cfg webSourceConfig
	if err := json.Unmarshal(source.Config, &cfg); err != nil {
		return nil, fmt.Errorf("%w: bad source config: %v", ErrFatal, err)
	}
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("%w: source %s has no urls configured", ErrFatal, source.ID)
	}

	items := make([]Item, 0, len(cfg.URLs))
	for _, u := range cfg.URLs {
		item, err := e.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *HTTPExtractor) fetch(ctx context.Context, pageURL string) (Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Item{}, fmt.Errorf("%w: building request for %s: %v", ErrFatal, pageURL, err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return Item{}, classifyError(pageURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Item{}, fmt.Errorf("%w: fetch %s: status %d", ErrTransient, pageURL, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Item{}, fmt.Errorf("%w: fetch %s: status %d", ErrFatal, pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Item{}, fmt.Errorf("%w: reading %s: %v", ErrTransient, pageURL, err)
	}

	return Item{
		URL:   pageURL,
		Title: firstLine(string(body)),
		Body:  string(body),
	}, nil
}

// classifyError maps transport failures to the retryable error kind.
// Timeouts and connection errors are transient; everything else is fatal.
func classifyError(pageURL string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: fetch %s: %v", ErrTransient, pageURL, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: fetch %s: %v", ErrTransient, pageURL, err)
	}
	return fmt.Errorf("%w: fetch %s: %v", ErrFatal, pageURL, err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
