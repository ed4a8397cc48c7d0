package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"stock-analyst/internal/logging"
	"stock-analyst/internal/security"
)

// DefaultPolygonBaseURL is the Polygon.io REST endpoint.
const DefaultPolygonBaseURL = "https://api.polygon.io"

// PolygonProvider fetches daily aggregates from Polygon.io.
type PolygonProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
	now     func() time.Time
}

// NewPolygonProvider creates a Polygon.io provider. An empty baseURL uses
// DefaultPolygonBaseURL.
func NewPolygonProvider(apiKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *PolygonProvider {
	if baseURL == "" {
		baseURL = DefaultPolygonBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PolygonProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}
}

func (p *PolygonProvider) Name() string { return "polygon" }

// polygonAggs is the response of the aggregates endpoint.
type polygonAggs struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		T int64    `json:"t"`
		O float64  `json:"o"`
		H float64  `json:"h"`
		L float64  `json:"l"`
		C *float64 `json:"c"`
		V float64  `json:"v"`
	} `json:"results"`
}

// FetchBars requests adjusted daily bars covering period, ending today.
func (p *PolygonProvider) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("polygon: API key not configured")
	}

	end := p.now().UTC()
	start := end.AddDate(0, 0, -period.Days(end))

	u := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		p.baseURL, url.PathEscape(NormalizeTicker(ticker)),
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	q := url.Values{}
	q.Set("apiKey", p.apiKey)
	q.Set("adjusted", "true")
	q.Set("sort", "asc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	resp, err := p.client.Do(req)
	// Transport errors quote the request URL, which carries the API key.
	err = security.RedactError(err)
	logging.LogAPICall(p.logger, http.MethodGet, "polygon/aggs", time.Since(began), err)
	if err != nil {
		return nil, fmt.Errorf("polygon fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polygon read body: %w", err)
	}

	var aggs polygonAggs
	if err := json.Unmarshal(body, &aggs); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("polygon: status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("polygon decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || (aggs.Status != "OK" && aggs.Status != "DELAYED") {
		msg := aggs.Error
		if msg == "" {
			msg = aggs.Message
		}
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("polygon api error (status %d, %s): %s", resp.StatusCode, aggs.Status, msg)
	}

	bars := make([]RawBar, 0, len(aggs.Results))
	for _, r := range aggs.Results {
		bars = append(bars, RawBar{
			Time:   time.UnixMilli(r.T).UTC(),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: r.V,
		})
	}
	return bars, nil
}
