package api

import (
	"encoding/json"
	"net/http"

	"github.com/parcelbox-dev/parcelbox-core/internal/auth"
)

// busTokenResponse is the body returned by both bus token endpoints.
type busTokenResponse struct {
	Token     string            `json:"token"`
	TokenType string            `json:"token_type"`
	ExpiresIn int               `json:"expires_in"`
	Grants    []auth.TopicGrant `json:"grants"`
}

// provisionTokenRequest is the request body for the hardware bus token
// endpoint.
type provisionTokenRequest struct {
	Role    auth.Role `json:"role"`
	BoxID   int64     `json:"box_id"`
	Subject string    `json:"subject"`
}

// handleUserBusToken mints a bus capability token for the calling user.
// The grant list is fixed by role; users can only read their own
// notification topic.
func (s *Server) handleUserBusToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	ttl := s.authCfg.BusTokenTTL
	token, err := auth.BusTokenForUser(userID, s.authCfg.JWTSecret, ttl)
	if err != nil {
		s.logger.Error("bus token generation failed", "user_id", userID, "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, busTokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: ttl * 60,
		Grants:    auth.GrantsForUser(userID),
	})
}

// handleProvisionBusToken mints a bus capability token for a hardware agent
// or the server itself. Gated by the provision key middleware; there is no
// silent renewal, agents call this again when their token expires.
func (s *Server) handleProvisionBusToken(w http.ResponseWriter, r *http.Request) {
	var req provisionTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ttl := s.authCfg.BusTokenTTL

	var (
		token  string
		grants []auth.TopicGrant
		err    error
	)
	switch req.Role {
	case auth.RoleHardware:
		if req.BoxID <= 0 {
			writeBadRequest(w, "box_id is required for hardware tokens")
			return
		}
		token, err = auth.BusTokenForHardware(req.BoxID, s.authCfg.JWTSecret, ttl)
		grants = auth.GrantsForHardware(req.BoxID)
	case auth.RoleServer:
		subject := req.Subject
		if subject == "" {
			subject = "parcelbox-core"
		}
		token, err = auth.BusTokenForServer(subject, s.authCfg.JWTSecret, ttl)
		grants = auth.GrantsForServer()
	default:
		writeBadRequest(w, "role must be hardware or server")
		return
	}
	if err != nil {
		s.logger.Error("bus token generation failed", "role", string(req.Role), "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, busTokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: ttl * 60,
		Grants:    grants,
	})
}
