// Package api exposes the availability engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"stationbook/internal/availability"
	"stationbook/internal/metrics"
	"stationbook/internal/model"
)

const requestIDHeader = "X-Request-ID"

// Availability is the query surface served by the API.
type Availability interface {
	GetAvailableDates(ctx context.Context, q availability.DatesQuery) ([]availability.DateAvailability, error)
	GetAvailableTimes(ctx context.Context, q availability.TimesQuery) ([]availability.TimeSlot, error)
}

// Catalog resolves service metadata for exports.
type Catalog interface {
	FetchService(ctx context.Context, serviceID int64) (*model.Service, error)
}

// Options configures the HTTP server.
type Options struct {
	Address        string
	Location       *time.Location
	RateLimitRPS   float64 // <= 0 disables limiting
	RateLimitBurst int
}

// HTTPServer serves the availability endpoints.
type HTTPServer struct {
	avail   Availability
	catalog Catalog
	loc     *time.Location
	limiter *rate.Limiter
	server  *http.Server
	logger  *zerolog.Logger
}

// NewHTTPServer builds the router and middleware chain.
func NewHTTPServer(avail Availability, catalog Catalog, opts Options, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	s := &HTTPServer{
		avail:   avail,
		catalog: catalog,
		loc:     opts.Location,
		limiter: limiter,
		logger:  logger,
	}

	router := httprouter.New()
	router.GET("/api/v1/services/:id/dates", s.route("dates", s.handleDates))
	router.GET("/api/v1/services/:id/times", s.route("times", s.handleTimes))
	router.GET("/api/v1/services/:id/export.xlsx", s.route("export", s.handleExport))
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.IncHTTP("not_found", strconv.Itoa(http.StatusNotFound))
		writeError(w, http.StatusNotFound, "not found", false)
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		zerolog.Ctx(r.Context()).Error().Interface("panic", v).Msg("handler panic")
		writeError(w, http.StatusInternalServerError, "internal error", false)
	}

	var handler http.Handler = router
	handler = s.withRateLimit(handler)
	handler = s.withRequestID(handler)
	handler = otelhttp.NewHandler(handler, "stationbook")

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start serves until Shutdown. It returns nil on a clean shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("availability API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.IncHTTP("rate_limited", strconv.Itoa(http.StatusTooManyRequests))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", true)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) route(name string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		h(rec, r, ps)

		metrics.IncHTTP(name, strconv.Itoa(rec.status))
		zerolog.Ctx(r.Context()).Debug().
			Str("route", name).
			Int("status", rec.status).
			Dur("elapsed", time.Since(started)).
			Msg("request served")
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, errorResponse{Error: msg, Retryable: retryable})
}

// writeEngineError maps engine failures onto status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), false)
	case errors.Is(err, availability.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "availability computation timed out", true)
	case availability.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "availability temporarily unavailable", true)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("availability request failed")
		writeError(w, http.StatusInternalServerError, "internal error", false)
	}
}
