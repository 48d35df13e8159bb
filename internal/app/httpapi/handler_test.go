package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	app "github.com/meridianlabs/rwa-oracle/internal/app"
	oraclesvc "github.com/meridianlabs/rwa-oracle/internal/app/services/oracle"
	"github.com/meridianlabs/rwa-oracle/pkg/logger"
)

const (
	testAuthToken = "test-token"
	testAdmin     = "desk-admin"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	log := logger.NewDefault("test-httpapi")
	log.SetOutput(io.Discard)

	sources := app.Sources{
		Prices: oraclesvc.PriceSourceFunc(func(_ context.Context, _ string) (oraclesvc.Observation, error) {
			return oraclesvc.Observation{Raw: decimal.NewFromInt(100)}, nil
		}),
		Rates: oraclesvc.RateSourceFunc(func(_ context.Context, _, _ string) (oraclesvc.Rate, error) {
			return oraclesvc.Rate{Value: decimal.NewFromInt(1)}, nil
		}),
	}
	application, err := app.New(app.Stores{}, sources, log)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return WrapWithAuth(NewHandler(application), []string{testAuthToken}, nil)
}

func marshal(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return bytes.NewReader(b)
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	return req
}

func configPayload() map[string]any {
	return map[string]any{
		"admin":               testAdmin,
		"base_symbol":         "USD",
		"decimals":            2,
		"fx_source":           "https://fx.example.com/rates",
		"max_yield_deviation": "1",
		"period":              86400000,
		"resolution":          300000,
	}
}

func TestHandlerLifecycle(t *testing.T) {
	handler := newTestHandler(t)

	// Mutations without a token are refused before reaching the engine.
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/config", marshal(t, configPayload())))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/config", marshal(t, configPayload())))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 init, got %d: %s", resp.Code, resp.Body)
	}

	// A second initialization is a client error.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/config", marshal(t, configPayload())))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 reinit, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/config", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get config, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/decimals", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get decimals, got %d", resp.Code)
	}
	var field struct {
		Value uint32 `json:"value"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &field); err != nil {
		t.Fatalf("unmarshal decimals: %v", err)
	}
	if field.Value != 2 {
		t.Fatalf("expected decimals 2, got %d", field.Value)
	}

	assetBody := map[string]any{
		"caller":  testAdmin,
		"symbols": []string{"USD"},
		"ids":     []string{"usd-treasury"},
	}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/assets", marshal(t, assetBody)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 add assets, got %d: %s", resp.Code, resp.Body)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/assets/usd-treasury/update", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 update, got %d: %s", resp.Code, resp.Body)
	}
	var snap struct {
		AssetID string `json:"asset_id"`
		Yield   string `json:"yield"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.AssetID != "usd-treasury" || snap.Yield != "0" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/assets/usd-treasury/lastprice", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 lastprice, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/assets/usd-treasury/twap?count=1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 twap, got %d: %s", resp.Code, resp.Body)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/assets/usd-treasury/twap?count=5", nil))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short history, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/assets/ghost/lastprice", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown asset, got %d", resp.Code)
	}

	// The engine enforces the admin identity independently of the token.
	patch := map[string]any{"caller": "intruder", "fx_source": "https://fx.example.com/v2"}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPatch, "/config", marshal(t, patch)))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong caller, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 healthz, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 metrics, got %d", resp.Code)
	}
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	handler := newTestHandler(t)

	body := bytes.NewReader([]byte(`{"admin":"a","bogus":true}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/config", body))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.Code)
	}
}

func TestHandlerQueryValidation(t *testing.T) {
	handler := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/assets/x/price", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing timestamp, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/assets/x/prices?count=abc", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad count, got %d", resp.Code)
	}
}
