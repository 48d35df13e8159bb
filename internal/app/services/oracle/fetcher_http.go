package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	domain "github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/metrics"
	"github.com/meridianlabs/rwa-oracle/pkg/logger"
)

const maxSourceResponseBytes = 1 << 20

// HTTPPriceSource fetches raw asset prices from a JSON HTTP endpoint. Field
// locations in the response are configurable as gjson paths so the source
// can point at different upstream providers without code changes.
type HTTPPriceSource struct {
	client       *http.Client
	endpoint     *url.URL
	apiKey       string
	pricePath    string
	decimalsPath string
	timePath     string
	log          *logger.Logger
}

// NewHTTPPriceSource constructs a price source. The endpoint receives the
// asset id as the "asset" query parameter. pricePath must locate the
// integer-scaled price in the response; decimalsPath and timePath are
// optional.
func NewHTTPPriceSource(client *http.Client, endpoint, apiKey, pricePath, decimalsPath, timePath string, log *logger.Logger) (*HTTPPriceSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("price source endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse price source endpoint: %w", err)
	}
	if strings.TrimSpace(pricePath) == "" {
		return nil, fmt.Errorf("price source json path required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("oracle-price-source")
	}
	return &HTTPPriceSource{
		client:       client,
		endpoint:     parsed,
		apiKey:       strings.TrimSpace(apiKey),
		pricePath:    strings.TrimSpace(pricePath),
		decimalsPath: strings.TrimSpace(decimalsPath),
		timePath:     strings.TrimSpace(timePath),
		log:          log,
	}, nil
}

func (p *HTTPPriceSource) Price(ctx context.Context, assetID string) (Observation, error) {
	requestURL := *p.endpoint
	q := requestURL.Query()
	q.Set("asset", assetID)
	requestURL.RawQuery = q.Encode()

	start := time.Now()
	body, err := fetchJSON(ctx, p.client, requestURL.String(), p.apiKey)
	metrics.RecordSourceFetch("price", time.Since(start), err == nil)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}

	priceField := gjson.GetBytes(body, p.pricePath)
	if !priceField.Exists() {
		return Observation{}, fmt.Errorf("%w: response missing %q", domain.ErrPriceUnavailable, p.pricePath)
	}
	raw, err := decimal.NewFromString(priceField.String())
	if err != nil {
		return Observation{}, fmt.Errorf("%w: parse price %q: %v", domain.ErrPriceUnavailable, priceField.String(), err)
	}

	obs := Observation{Raw: raw, AsOf: time.Now()}
	if p.decimalsPath != "" {
		if field := gjson.GetBytes(body, p.decimalsPath); field.Exists() {
			obs.Decimals = uint32(field.Uint())
		}
	}
	if p.timePath != "" {
		if field := gjson.GetBytes(body, p.timePath); field.Exists() {
			obs.AsOf = time.UnixMilli(field.Int())
		}
	}
	return obs, nil
}

// HTTPRateSource fetches FX conversion rates from a JSON HTTP endpoint. The
// base endpoint comes per call from the oracle configuration, so admin
// updates to the FX source take effect without a restart.
type HTTPRateSource struct {
	client   *http.Client
	apiKey   string
	ratePath string
	timePath string
	log      *logger.Logger
}

// NewHTTPRateSource constructs an FX rate source. ratePath must locate the
// decimal rate in the response; timePath is optional.
func NewHTTPRateSource(client *http.Client, apiKey, ratePath, timePath string, log *logger.Logger) (*HTTPRateSource, error) {
	if strings.TrimSpace(ratePath) == "" {
		return nil, fmt.Errorf("rate source json path required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("oracle-rate-source")
	}
	return &HTTPRateSource{
		client:   client,
		apiKey:   strings.TrimSpace(apiKey),
		ratePath: strings.TrimSpace(ratePath),
		timePath: strings.TrimSpace(timePath),
		log:      log,
	}, nil
}

func (r *HTTPRateSource) Rate(ctx context.Context, source, symbol string) (Rate, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Rate{}, fmt.Errorf("%w: no fx source configured", domain.ErrFxUnavailable)
	}
	parsed, err := url.Parse(source)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: parse fx source: %v", domain.ErrFxUnavailable, err)
	}
	q := parsed.Query()
	q.Set("symbol", symbol)
	parsed.RawQuery = q.Encode()

	start := time.Now()
	body, err := fetchJSON(ctx, r.client, parsed.String(), r.apiKey)
	metrics.RecordSourceFetch("fx", time.Since(start), err == nil)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %v", domain.ErrFxUnavailable, err)
	}

	rateField := gjson.GetBytes(body, r.ratePath)
	if !rateField.Exists() {
		return Rate{}, fmt.Errorf("%w: response missing %q", domain.ErrFxUnavailable, r.ratePath)
	}
	value, err := decimal.NewFromString(rateField.String())
	if err != nil {
		return Rate{}, fmt.Errorf("%w: parse rate %q: %v", domain.ErrFxUnavailable, rateField.String(), err)
	}

	rate := Rate{Value: value, AsOf: time.Now()}
	if r.timePath != "" {
		if field := gjson.GetBytes(body, r.timePath); field.Exists() {
			rate.AsOf = time.UnixMilli(field.Int())
		}
	}
	return rate, nil
}

func fetchJSON(ctx context.Context, client *http.Client, requestURL, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
