package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"iot-telemetry/internal/domain"

	"go.uber.org/zap"
)

// Ingester stores one raw payload
type Ingester interface {
	Ingest(ctx context.Context, protocol domain.Protocol, payload []byte) (domain.Reading, error)
}

// RecentQuerier serves the recent window
type RecentQuerier interface {
	RecentWindow(ctx context.Context) ([]domain.ReadingView, error)
}

type ReadingsHandler struct {
	ingest Ingester
	query  RecentQuerier
	logger *zap.Logger
}

func NewReadingsHandler(ingest Ingester, query RecentQuerier, logger *zap.Logger) *ReadingsHandler {
	return &ReadingsHandler{ingest: ingest, query: query, logger: logger}
}

const homePage = `<h1>IoT Monitoring Server Active</h1><p>Telemetry backend is running.</p>`

// Home is a liveness page; any other unmatched path is 404
func (h *ReadingsHandler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != PathHome {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(homePage))
}

// PostReading stores one reading from the HTTP ingress path.
// 201 {"status":"success"} | 400 on validation | 500 on storage failure.
func (h *ReadingsHandler) PostReading(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}

	if _, err := h.ingest.Ingest(r.Context(), domain.ProtocolHTTP, body); err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.logger.Debug("Rejected HTTP reading", zap.Error(err))
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, StatusResponse{Status: StatusSuccess})
}

// LatestReadings returns the recent window as a JSON array, oldest first
func (h *ReadingsHandler) LatestReadings(w http.ResponseWriter, r *http.Request) {
	views, err := h.query.RecentWindow(r.Context())
	if err != nil {
		h.logger.Error("Failed to load recent readings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ExportXLSX returns the recent window as a spreadsheet download
func (h *ReadingsHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	views, err := h.query.RecentWindow(r.Context())
	if err != nil {
		h.logger.Error("Failed to load readings for export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := GenerateReadingsExport(views)
	if err != nil {
		h.logger.Error("Failed to build export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("leituras_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
