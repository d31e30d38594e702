package http

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/barotovamirbek/elowy-chat/internal/models"
	"github.com/barotovamirbek/elowy-chat/internal/repository"
)

// =======================
// GET MY GROUPS
// =======================
func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.GetUserGroups(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// =======================
// CREATE GROUP
// =======================
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGroupRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := h.groups.CreateGroup(r.Context(), models.Group{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		CreatedBy:   userIDFrom(r.Context()),
	}, req.MemberIDs)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// requireRole checks the caller holds one of roles in the group and writes
// the error response when not.
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, groupID int, roles ...string) bool {
	role, err := h.groups.MemberRole(r.Context(), groupID, userIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return false
		}
		h.internalError(w, r, err)
		return false
	}
	for _, allowed := range roles {
		if role == allowed {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

// =======================
// UPDATE GROUP (owner/admin)
// =======================
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var patch models.GroupPatch
	if err := h.decode(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch.ID = groupID
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if !h.requireRole(w, r, groupID, models.RoleOwner, models.RoleAdmin) {
		return
	}

	group, err := h.groups.UpdateGroup(r.Context(), patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	members, err := h.groups.MemberIDs(r.Context(), groupID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.notifier.Emit(members, models.EventGroupUpdated, patch)
	writeJSON(w, http.StatusOK, group)
}

// =======================
// DELETE GROUP (owner)
// =======================
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if !h.requireRole(w, r, groupID, models.RoleOwner) {
		return
	}

	// участников берём до удаления, после него членство исчезает каскадом
	members, err := h.groups.MemberIDs(r.Context(), groupID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if err := h.groups.DeleteGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.notifier.Emit(members, models.EventGroupDeleted, models.GroupDeleted{ID: groupID})
	w.WriteHeader(http.StatusNoContent)
}
