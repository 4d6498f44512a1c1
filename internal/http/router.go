package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

// Route paths kept compatible with the existing dashboard and firmware
const (
	PathHome    = "/"
	PathIngest  = "/dados_http"
	PathLatest  = "/ultimos_dados"
	PathExport  = "/exportar_xlsx"
	PathHealth  = "/health"
	PathMetrics = "/metrics"
)

// Router wraps http.ServeMux; method checks are done per route
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (metrics and the like)
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the router behind a permissive CORS policy so a static
// dashboard page can read the endpoints from any origin.
func (r *Router) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.Header().Set("Allow", method)
			writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
			return
		}
		h(w, req)
	}
}

// RegisterReadingRoutes registers the ingest and read endpoints
func (r *Router) RegisterReadingRoutes(h *ReadingsHandler) {
	r.Handle(PathHome, h.Home)
	r.Handle(PathIngest, methodOnly(http.MethodPost, h.PostReading))
	r.Handle(PathLatest, methodOnly(http.MethodGet, h.LatestReadings))
	r.Handle(PathExport, methodOnly(http.MethodGet, h.ExportXLSX))
}

// RegisterOpsRoutes registers health and metrics; metrics may be nil
func (r *Router) RegisterOpsRoutes(health *HealthHandler, metrics http.Handler) {
	r.Handle(PathHealth, methodOnly(http.MethodGet, health.Health))
	if metrics != nil {
		r.HandleHandler(PathMetrics, metrics)
	}
}
