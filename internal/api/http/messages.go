package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/barotovamirbek/elowy-chat/internal/repository"
)

func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	return id, err == nil && id > 0
}

// GET /api/messages/{peerID}
func (h *Handler) DirectHistory(w http.ResponseWriter, r *http.Request) {
	peerID, ok := pathID(r, "peerID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return
	}
	msgs, err := h.messages.GetDirectMessages(r.Context(), userIDFrom(r.Context()), peerID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// GET /api/groups/{groupID}/messages
func (h *Handler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if _, err := h.groups.MemberRole(r.Context(), groupID, userIDFrom(r.Context())); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusForbidden, "not a member of this group")
			return
		}
		h.internalError(w, r, err)
		return
	}
	msgs, err := h.messages.GetGroupMessages(r.Context(), groupID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}
