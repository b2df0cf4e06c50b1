package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/httputil"
)

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	validOnly := false
	if raw := r.URL.Query().Get("valid"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		validOnly = v
	}

	summaries, err := h.svc.Accounts.ListSummaries(r.Context(), validOnly)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summaries)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Accounts.Summarize(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *handler) listEntries(w http.ResponseWriter, r *http.Request) {
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

	lines, err := h.svc.Accounts.BalanceLines(r.Context(), mux.Vars(r)["reference"], from, to)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lines)
}

func (h *handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Date          string          `json:"date"`
		Amount        decimal.Decimal `json:"amount"`
		Description   string          `json:"description"`
		Additive      *bool           `json:"additive"`
		LedgerAccount string          `json:"ledger_account"`
		Tags          []string        `json:"tags"`
		Visible       *bool           `json:"visible"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	var date time.Time
	if payload.Date != "" {
		parsed, err := time.Parse(dateParamLayout, payload.Date)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		date = parsed
	}

	e := ledger.Entry{
		AccountReference: mux.Vars(r)["reference"],
		Date:             date,
		Amount:           payload.Amount,
		Description:      payload.Description,
		Additive:         true,
		LedgerAccount:    payload.LedgerAccount,
		Tags:             payload.Tags,
		Visible:          true,
	}
	if payload.Additive != nil {
		e.Additive = *payload.Additive
	}
	if payload.Visible != nil {
		e.Visible = *payload.Visible
	}

	created, err := h.svc.Accounts.AddEntry(r.Context(), e)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}
