package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	domain "github.com/pik-ry/laskutin/internal/domain/aircraft"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/httputil"
	"github.com/pik-ry/laskutin/internal/metrics"
	"github.com/pik-ry/laskutin/internal/services/operations"
)

func (h *handler) listAircraft(w http.ResponseWriter, r *http.Request) {
	fleet, err := h.svc.Operations.ListAircraft(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fleet)
}

func (h *handler) createAircraft(w http.ResponseWriter, r *http.Request) {
	var a domain.Aircraft
	if err := httputil.DecodeJSON(r.Body, &a); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.svc.Operations.CreateAircraft(r.Context(), a)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) listFlights(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	q := operations.FlightQuery{
		From:     from,
		To:       to,
		Aircraft: r.URL.Query().Get("aircraft"),
		Account:  r.URL.Query().Get("account"),
	}
	flights, err := h.svc.Operations.QueryFlights(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flights)
}

func (h *handler) createFlight(w http.ResponseWriter, r *http.Request) {
	var f flight.Flight
	if err := httputil.DecodeJSON(r.Body, &f); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.svc.Operations.CreateFlight(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	metrics.AddFlightsImported(1)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) refundFlight(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Billing.RefundFlight(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}
