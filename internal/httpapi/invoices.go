package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/httputil"
	"github.com/pik-ry/laskutin/internal/metrics"
)

// decodeOptional decodes a request body when one was sent. Endpoints with
// all-optional parameters accept an empty body.
func decodeOptional(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httputil.DecodeJSON(r.Body, dst)
}

func (h *handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	status := invoice.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
		return
	}

	list, err := h.svc.Invoicing.List(r.Context(), r.URL.Query().Get("account"), status)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	inv, err := h.svc.Invoicing.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	entries, err := h.svc.Invoicing.Entries(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}

	httputil.WriteJSON(w, http.StatusOK, struct {
		Invoice invoice.Invoice `json:"invoice"`
		Entries []ledger.Entry  `json:"entries"`
		Total   decimal.Decimal `json:"total"`
	}{inv, entries, total})
}

func (h *handler) setInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.svc.Invoicing.SetStatus(r.Context(), mux.Vars(r)["id"], invoice.Status(payload.Status))
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Invoicing.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) generateInvoices(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Account      string `json:"account"`
		DeleteDrafts bool   `json:"delete_drafts"`
	}
	if err := decodeOptional(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	report, err := h.svc.Invoicing.Generate(r.Context(), payload.Account, payload.DeleteDrafts, "")
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	metrics.AddInvoicesGenerated(report.Created)
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *handler) runBilling(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		From   string `json:"from"`
		To     string `json:"to"`
		DryRun bool   `json:"dry_run"`
	}
	if err := decodeOptional(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	var from, to time.Time
	if payload.From != "" {
		parsed, err := time.Parse(dateParamLayout, payload.From)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		from = parsed
	}
	if payload.To != "" {
		parsed, err := time.Parse(dateParamLayout, payload.To)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		to = parsed
	}

	report, err := h.svc.Billing.ProcessFlights(r.Context(), from, to, payload.DryRun)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if !report.DryRun {
		metrics.AddEntriesWritten(report.Entries)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
