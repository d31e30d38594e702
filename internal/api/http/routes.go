package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires every route of the server. ws serves the realtime endpoint
// and metrics the Prometheus scrape endpoint. CORS wraps the router so
// preflight requests never reach route matching.
func NewRouter(h *Handler, ws http.HandlerFunc, metrics http.Handler) http.Handler {
	r := mux.NewRouter()
	// websocket upgrades must not go through the status recorder
	r.HandleFunc("/ws", ws)
	r.Handle("/metrics", metrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requestLogger(h.log))

	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(h.RequireAuth)
	authed.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{peerID:[0-9]+}", h.DirectHistory).Methods(http.MethodGet)

	// Группы
	authed.HandleFunc("/groups", h.MyGroups).Methods(http.MethodGet)
	authed.HandleFunc("/groups", h.CreateGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{groupID:[0-9]+}", h.UpdateGroup).Methods(http.MethodPatch)
	authed.HandleFunc("/groups/{groupID:[0-9]+}", h.DeleteGroup).Methods(http.MethodDelete)
	authed.HandleFunc("/groups/{groupID:[0-9]+}/messages", h.GroupHistory).Methods(http.MethodGet)

	return cors(r)
}
