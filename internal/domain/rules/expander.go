package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Expander materializes the member codes of a topic source that was submitted
// without any. It is invoked synchronously, at most once per source per
// compile request; a failure rejects only that source.
type Expander interface {
	Expand(ctx context.Context, src *TopicSource) (map[string]interface{}, error)
}

// HTTPExpander calls a terminology server's ValueSet $expand operation.
type HTTPExpander struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPExpander creates an expander against the given terminology server
// base URL (e.g. "https://tx.example.org/fhir").
func NewHTTPExpander(baseURL string, logger zerolog.Logger) *HTTPExpander {
	return &HTTPExpander{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Expand fetches the expanded ValueSet for the source's canonical url and
// returns it as a generic resource map.
func (e *HTTPExpander) Expand(ctx context.Context, src *TopicSource) (map[string]interface{}, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("source %s has no canonical url to expand", src.ID)
	}

	endpoint := fmt.Sprintf("%s/ValueSet/$expand?url=%s", e.baseURL, url.QueryEscape(src.URL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build expand request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read expand response for %s: %w", src.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expand %s: terminology server returned %d", src.URL, resp.StatusCode)
	}

	var expanded map[string]interface{}
	if err := json.Unmarshal(body, &expanded); err != nil {
		return nil, fmt.Errorf("decode expand response for %s: %w", src.URL, err)
	}

	e.logger.Debug().Str("url", src.URL).Msg("expanded topic source")
	return expanded, nil
}
