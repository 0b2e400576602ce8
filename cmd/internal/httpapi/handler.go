// Package httpapi binds the transport-neutral session operations to concrete
// HTTP routes. It owns exactly three transport concerns: the credential
// header, the identity-marker cookie, and the single place core faults are
// serialized.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"podium/cmd/internal/fault"
	"podium/cmd/internal/live"
	"podium/cmd/internal/reaction"
	"podium/cmd/internal/session"
)

// Counters is the optional request-level instrumentation. Nil fields are
// skipped.
type Counters struct {
	Sessions  prometheus.Counter
	Logins    prometheus.Counter
	Reactions prometheus.Counter
}

// Handler wires HTTP routes to the session registry, reaction ledger, and
// live gateway.
type Handler struct {
	log      *slog.Logger
	registry *session.Registry
	ledger   *reaction.Ledger
	gateway  *live.Gateway
	counters Counters
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, registry *session.Registry, ledger *reaction.Ledger, gateway *live.Gateway, counters Counters) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		registry: registry,
		ledger:   ledger,
		gateway:  gateway,
		counters: counters,
	}
}

// Register mounts the API and websocket routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleNewSession)
		r.Get("/{sid}", h.handleGetSession)
		r.Post("/{sid}/login", h.handleLogin)
		r.Post("/{sid}/reactions", h.handleReact)
		r.Get("/{sid}/reactions", h.handleListReactions)
		r.Put("/{sid}/state", h.handleSetState)
		r.Get("/{sid}/state", h.handleGetState)
	})

	if h.gateway != nil {
		r.Get("/ws/{sid}", func(w http.ResponseWriter, r *http.Request) {
			h.gateway.HandleWS(w, r, chi.URLParam(r, "sid"))
		})
	}
}

type successBody struct {
	Success bool `json:"success"`
}

type loginBody struct {
	UID string `json:"uid"`
}

func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var body session.NewSessionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.registry.NewSession(r.Context(), httpRequest{w: w, r: r}, body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if h.counters.Sessions != nil {
		h.counters.Sessions.Inc()
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.registry.GetSession(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	// Absence is an answer on the public endpoint: a JSON null, not an error.
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	uid, err := h.registry.Login(r.Context(), chi.URLParam(r, "sid"), httpRequest{w: w, r: r})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if h.counters.Logins != nil {
		h.counters.Logins.Inc()
	}
	writeJSON(w, http.StatusOK, loginBody{UID: uid})
}

type reactBody struct {
	UID      string `json:"uid"`
	Page     string `json:"page"`
	Reaction string `json:"reaction"`
}

func (h *Handler) handleReact(w http.ResponseWriter, r *http.Request) {
	var body reactBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	err := h.ledger.React(r.Context(), chi.URLParam(r, "sid"), body.UID, body.Page, body.Reaction, httpRequest{w: w, r: r})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if h.counters.Reactions != nil {
		h.counters.Reactions.Inc()
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// handleListReactions is the host-side reaction query feeding the presenter
// charts. Filters narrow by page and uid; the session filter is implicit.
func (h *Handler) handleListReactions(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")

	if _, _, err := h.registry.Guard().RequireHostSession(r.Context(), sid, httpRequest{w: w, r: r}); err != nil {
		writeError(w, h.log, err)
		return
	}

	filters := map[string]string{"session": sid}
	if page := r.URL.Query().Get("page"); page != "" {
		filters["page"] = page
	}
	if uid := r.URL.Query().Get("uid"); uid != "" {
		filters["uid"] = uid
	}

	list, err := h.ledger.List(r.Context(), filters)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []reaction.Reaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

type setStateBody struct {
	Page  string `json:"page"`
	State string `json:"state"`
}

func (h *Handler) handleSetState(w http.ResponseWriter, r *http.Request) {
	var body setStateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	err := h.registry.SetState(r.Context(), chi.URLParam(r, "sid"), body.Page, body.State, httpRequest{w: w, r: r})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.GetState(r.Context(), chi.URLParam(r, "sid"), httpRequest{w: w, r: r})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.Validation, "invalid request body", err)
	}
	return nil
}
