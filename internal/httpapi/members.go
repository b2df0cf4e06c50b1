package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	domain "github.com/pik-ry/laskutin/internal/domain/member"
	"github.com/pik-ry/laskutin/internal/httputil"
)

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Members.List(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createMember(w http.ResponseWriter, r *http.Request) {
	var m domain.Member
	if err := httputil.DecodeJSON(r.Body, &m); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.svc.Members.Create(r.Context(), m)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Members.Get(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *handler) updateMember(w http.ResponseWriter, r *http.Request) {
	var m domain.Member
	if err := httputil.DecodeJSON(r.Body, &m); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	m.Reference = mux.Vars(r)["reference"]

	updated, err := h.svc.Members.Update(r.Context(), m)
	if err != nil {
		httputil.WriteError(w, errStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
