// Package httpapi exposes the oracle engine over a small REST surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/meridianlabs/rwa-oracle/internal/app"
	"github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/metrics"
)

// handler bundles HTTP endpoints for the oracle service.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the oracle REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/config", h.config)
	mux.HandleFunc("/base", h.base)
	mux.HandleFunc("/decimals", h.decimals)
	mux.HandleFunc("/resolution", h.resolution)
	mux.HandleFunc("/assets", h.assets)
	mux.HandleFunc("/assets/", h.assetResources)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload oracle.Config
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cfg, err := h.app.Oracle.Initialize(r.Context(), payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cfg)

	case http.MethodGet:
		cfg, err := h.app.Oracle.Config(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPatch:
		var payload struct {
			Caller string `json:"caller"`
			oracle.ConfigPatch
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cfg, err := h.app.Oracle.UpdateConfig(r.Context(), payload.Caller, payload.ConfigPatch)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) base(w http.ResponseWriter, r *http.Request) {
	h.configField(w, r, func(ctx context.Context) (any, error) {
		return h.app.Oracle.Base(ctx)
	})
}

func (h *handler) decimals(w http.ResponseWriter, r *http.Request) {
	h.configField(w, r, func(ctx context.Context) (any, error) {
		return h.app.Oracle.Decimals(ctx)
	})
}

func (h *handler) resolution(w http.ResponseWriter, r *http.Request) {
	h.configField(w, r, func(ctx context.Context) (any, error) {
		return h.app.Oracle.Resolution(ctx)
	})
}

func (h *handler) configField(w http.ResponseWriter, r *http.Request, field func(context.Context) (any, error)) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	value, err := field(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

func (h *handler) assets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Caller  string   `json:"caller"`
			Symbols []string `json:"symbols"`
			IDs     []string `json:"ids"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		added, err := h.app.Oracle.AddAssets(r.Context(), payload.Caller, payload.Symbols, payload.IDs)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, added)

	case http.MethodGet:
		assets, err := h.app.Oracle.ListAssets(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, assets)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) assetResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/assets"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	assetID := parts[0]

	switch parts[1] {
	case "update":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snap, err := h.app.Oracle.UpdatePrice(r.Context(), assetID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)

	case "lastprice":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snap, err := h.app.Oracle.LastPrice(r.Context(), assetID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)

	case "price":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ts, err := queryInt64(r, "timestamp")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		snap, err := h.app.Oracle.PriceAt(r.Context(), assetID, ts)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)

	case "prices":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		count, err := queryInt64(r, "count")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		snaps, err := h.app.Oracle.Prices(r.Context(), assetID, int(count))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snaps)

	case "twap":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		count, err := queryInt64(r, "count")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		twap, err := h.app.Oracle.TWAP(r.Context(), assetID, int(count))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"asset_id": assetID, "twap": twap})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, errors.New(key + " query parameter is required")
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return value, nil
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var devErr *oracle.DeviationError
	if errors.As(err, &devErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":     devErr.Error(),
			"asset_id":  devErr.AssetID,
			"deviation": devErr.Deviation,
			"threshold": devErr.Threshold,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, oracle.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, oracle.ErrAlreadyInitialized),
		errors.Is(err, oracle.ErrInvalidConfig),
		errors.Is(err, oracle.ErrLengthMismatch),
		errors.Is(err, oracle.ErrDuplicateAsset),
		errors.Is(err, oracle.ErrRegistryFull),
		errors.Is(err, oracle.ErrInvalidPrice):
		status = http.StatusBadRequest
	case errors.Is(err, oracle.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, oracle.ErrInsufficientHistory):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrFxUnavailable),
		errors.Is(err, oracle.ErrStaleFxRate),
		errors.Is(err, oracle.ErrPriceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, oracle.ErrOverflow):
		status = http.StatusInternalServerError
	}
	writeError(w, status, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
