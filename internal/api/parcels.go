package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelbox-dev/parcelbox-core/internal/parcel"
)

// registerParcelRequest is the request body for POST /parcels/register.
type registerParcelRequest struct {
	ParcelID string `json:"parcel_id"`
	Name     string `json:"name"`
}

// collectParcelRequest is the request body for POST /parcels/{id}/collect.
// Without force the request only triggers a hardware weight check; the client
// repeats the call with force=true once the reading confirms removal.
type collectParcelRequest struct {
	Force bool `json:"force"`
}

// deliveredEventRequest is the request body for the hardware delivery
// endpoint. It mirrors the bus delivery event for agents that report over
// HTTP instead.
type deliveredEventRequest struct {
	ParcelID string `json:"parcel_id"`
}

// handleListParcels returns the calling user's parcels, newest first.
func (s *Server) handleListParcels(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	parcels, err := s.parcels.ListByOwner(r.Context(), userID)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"parcels": parcels,
		"count":   len(parcels),
	})
}

// handleGetParcel returns one of the calling user's parcels by tracking ID.
// Parcels belonging to other users read as not found so tracking IDs cannot
// be probed.
func (s *Server) handleGetParcel(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	p, err := s.parcels.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, parcel.ErrNotFound) {
			writeNotFound(w, "parcel not found")
			return
		}
		writeTransitionError(w, err)
		return
	}
	if !p.OwnedBy(userID) {
		writeNotFound(w, "parcel not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleRegisterParcel claims an expected parcel for the calling user.
func (s *Server) handleRegisterParcel(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req registerParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ParcelID == "" {
		writeBadRequest(w, "parcel_id is required")
		return
	}

	result, err := s.coordinator.Register(r.Context(), userID, req.ParcelID, req.Name)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleUnlockParcel asks the hardware to open the box holding the parcel.
func (s *Server) handleUnlockParcel(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	result, err := s.coordinator.Unlock(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCollectParcel runs the two-phase collection handshake. An absent or
// empty body counts as phase one.
func (s *Server) handleCollectParcel(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req collectParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.coordinator.Collect(r.Context(), userID, chi.URLParam(r, "id"), req.Force)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeliveredEvent reconciles a delivery reported by a hardware agent
// over HTTP. The bus listener handles the same event published to the
// delivery topic; both paths are idempotent.
func (s *Server) handleDeliveredEvent(w http.ResponseWriter, r *http.Request) {
	var req deliveredEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ParcelID == "" {
		writeBadRequest(w, "parcel_id is required")
		return
	}

	result, err := s.coordinator.Deliver(r.Context(), req.ParcelID)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleExpectedParcel returns the next registered, undelivered parcel for a
// box. Hardware agents poll this to label incoming deliveries.
func (s *Server) handleExpectedParcel(w http.ResponseWriter, r *http.Request) {
	boxID, ok := boxIDParam(w, r)
	if !ok {
		return
	}

	p, err := s.parcels.ExpectedParcel(r.Context(), boxID)
	if err != nil {
		if errors.Is(err, parcel.ErrNotFound) {
			writeNotFound(w, "no expected parcel for this box")
			return
		}
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}
