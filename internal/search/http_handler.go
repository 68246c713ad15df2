package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rpattn/propspec/internal/criteria"
	"github.com/rpattn/propspec/internal/domain"
	"github.com/rpattn/propspec/internal/logger"
	"github.com/rpattn/propspec/internal/restriction"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	service *Service
	log     logger.Logger
}

func NewHTTPHandler(service *Service, log logger.Logger) http.Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/export"):
		h.handleExport(w, r)
	case r.Method == http.MethodGet:
		h.handleSearch(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/batch"):
		h.handleCreateBatch(w, r)
	case r.Method == http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.ParseRequest(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "search entities", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.ParseRequest(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dw := &downloadWriter{
		w:        w,
		filename: fmt.Sprintf("entities-%s.xlsx", time.Now().UTC().Format("20060102-150405")),
	}
	rows, err := h.service.Export(r.Context(), req, dw)
	if err != nil {
		if dw.started {
			h.log.WithContext(r.Context()).Error().Err(err).Msg("export aborted mid-stream")
			return
		}
		h.writeError(w, r, "export entities", err)
		return
	}
	h.log.WithContext(r.Context()).Info().Int("rows", rows).Str("file", dw.filename).Msg("entities exported")
}

// downloadWriter sends the attachment headers right before the first byte,
// so failures before that can still be reported with a status code.
type downloadWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (d *downloadWriter) Write(p []byte) (int, error) {
	if !d.started {
		d.started = true
		d.w.Header().Set("Content-Type", xlsxContentType)
		d.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", d.filename))
		d.w.WriteHeader(http.StatusOK)
	}
	return d.w.Write(p)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var input EntityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	entity, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.writeError(w, r, "create entity", err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var inputs []EntityInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	entities, err := h.service.CreateBatch(r.Context(), inputs)
	if err != nil {
		h.writeError(w, r, "create entities", err)
		return
	}
	writeJSON(w, http.StatusCreated, entities)
}

// writeError maps filter translation failures to 400 and everything else to 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	if IsClientError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.log.WithContext(r.Context()).Error().Err(err).Str("action", action).Msg("request failed")
	http.Error(w, fmt.Sprintf("%s: internal error", action), http.StatusInternalServerError)
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidExpression,
		domain.ErrInvalidValue,
		domain.ErrInvalidEntityPath,
		ErrInvalidEntity,
		criteria.ErrInvalidPath,
		restriction.ErrUnsupportedRestriction,
		restriction.ErrMissingValue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
