package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleListBoxes returns all delivery boxes.
func (s *Server) handleListBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := s.boxes.List(r.Context())
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"boxes": boxes,
		"count": len(boxes),
	})
}

// handleLockBox asks the hardware to close a box. The caller must have held
// a parcel in that box at some point; collection does not revoke the right
// to close the door behind you.
func (s *Server) handleLockBox(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	boxID, ok := boxIDParam(w, r)
	if !ok {
		return
	}

	result, err := s.coordinator.Lock(r.Context(), userID, boxID)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// boxIDParam parses the {id} route parameter as a box ID.
func boxIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "box id must be an integer")
		return 0, false
	}
	return id, true
}
