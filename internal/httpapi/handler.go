// Package httpapi exposes the club's ledger operations as a JSON REST API.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pik-ry/laskutin/internal/httputil"
	"github.com/pik-ry/laskutin/internal/metrics"
	"github.com/pik-ry/laskutin/internal/middleware"
	"github.com/pik-ry/laskutin/internal/services/accounts"
	"github.com/pik-ry/laskutin/internal/services/billing"
	"github.com/pik-ry/laskutin/internal/services/invoicing"
	"github.com/pik-ry/laskutin/internal/services/members"
	"github.com/pik-ry/laskutin/internal/services/operations"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

const dateParamLayout = "2006-01-02"

// Services bundles the domain services the API serves.
type Services struct {
	Members    *members.Service
	Accounts   *accounts.Service
	Operations *operations.Service
	Billing    *billing.Service
	Invoicing  *invoicing.Service
}

// Config carries the middleware settings of the API.
type Config struct {
	AuthSecret []byte
	SkipPaths  []string
	RateRPS    int
	RateBurst  int
}

// handler bundles the HTTP endpoints over the domain services.
type handler struct {
	svc Services
	log *logger.Logger
}

// NewHandler returns the routed API handler with logging, metrics, auth
// and rate limiting applied.
func NewHandler(svc Services, cfg Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 2 * cfg.RateRPS
	}
	if cfg.SkipPaths == nil {
		cfg.SkipPaths = []string{"/healthz", "/metrics"}
	}
	h := &handler{svc: svc, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/members", h.listMembers).Methods(http.MethodGet)
	api.HandleFunc("/members", h.createMember).Methods(http.MethodPost)
	api.HandleFunc("/members/{reference}", h.getMember).Methods(http.MethodGet)
	api.HandleFunc("/members/{reference}", h.updateMember).Methods(http.MethodPut)

	api.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{reference}", h.getAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{reference}/entries", h.listEntries).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{reference}/entries", h.createEntry).Methods(http.MethodPost)

	api.HandleFunc("/aircraft", h.listAircraft).Methods(http.MethodGet)
	api.HandleFunc("/aircraft", h.createAircraft).Methods(http.MethodPost)

	api.HandleFunc("/flights", h.listFlights).Methods(http.MethodGet)
	api.HandleFunc("/flights", h.createFlight).Methods(http.MethodPost)
	api.HandleFunc("/flights/{id}/refund", h.refundFlight).Methods(http.MethodPost)

	// Registered ahead of /invoices/{id} so "generate" is not taken
	// for an invoice id.
	api.HandleFunc("/invoices/generate", h.generateInvoices).Methods(http.MethodPost)
	api.HandleFunc("/invoices", h.listInvoices).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}", h.getInvoice).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}", h.deleteInvoice).Methods(http.MethodDelete)
	api.HandleFunc("/invoices/{id}/status", h.setInvoiceStatus).Methods(http.MethodPost)

	api.HandleFunc("/billing/run", h.runBilling).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowedHandler = methodNotAllowedHandler(r)

	auth := middleware.NewAuthMiddleware(cfg.AuthSecret, log, cfg.SkipPaths)
	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, log)
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.MetricsMiddleware())
	r.Use(auth.Handler)
	r.Use(limiter.Handler)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// methodNotAllowedHandler answers 405 with the Allow header filled from
// the routes matching the request path.
func methodNotAllowedHandler(r *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen := make(map[string]bool)
		_ = r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
			var match mux.RouteMatch
			if route.Match(req, &match) || errors.Is(match.MatchErr, mux.ErrMethodMismatch) {
				if methods, err := route.GetMethods(); err == nil {
					for _, m := range methods {
						seen[m] = true
					}
				}
			}
			return nil
		})

		allowed := make([]string, 0, len(seen))
		for m := range seen {
			allowed = append(allowed, m)
		}
		sort.Strings(allowed)
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
		}

		httputil.WriteError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
}

// errStatus maps service errors onto HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// dateParam parses an optional yyyy-mm-dd query parameter.
func dateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateParamLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q", name, raw)
	}
	return t, nil
}
