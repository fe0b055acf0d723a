package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// tokenInfoServer fakes Google's tokeninfo endpoint.
func tokenInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_token") == "" {
			t.Error("expected id_token query parameter")
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyIDToken_Valid(t *testing.T) {
	exp := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	srv := tokenInfoServer(t, http.StatusOK,
		`{"aud":"client-1","sub":"sub-123","email":"alice@example.com","name":"Alice","exp":"`+exp+`"}`)

	v := &GoogleVerifier{ClientID: "client-1", TokenInfoURL: srv.URL}

	identity, err := v.VerifyIDToken(t.Context(), "token")
	if err != nil {
		t.Fatalf("VerifyIDToken() error = %v", err)
	}
	if identity.Sub != "sub-123" {
		t.Errorf("Sub = %q, want sub-123", identity.Sub)
	}
	if identity.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", identity.Email)
	}
}

func TestVerifyIDToken_AudienceMismatch(t *testing.T) {
	srv := tokenInfoServer(t, http.StatusOK, `{"aud":"other-client","sub":"sub-123"}`)

	v := &GoogleVerifier{ClientID: "client-1", TokenInfoURL: srv.URL}

	_, err := v.VerifyIDToken(t.Context(), "token")
	if !errors.Is(err, ErrIDTokenRejected) {
		t.Errorf("error = %v, want ErrIDTokenRejected", err)
	}
}

func TestVerifyIDToken_EndpointRejects(t *testing.T) {
	srv := tokenInfoServer(t, http.StatusBadRequest, `{"error":"invalid_token"}`)

	v := &GoogleVerifier{ClientID: "client-1", TokenInfoURL: srv.URL}

	_, err := v.VerifyIDToken(t.Context(), "token")
	if !errors.Is(err, ErrIDTokenRejected) {
		t.Errorf("error = %v, want ErrIDTokenRejected", err)
	}
}

func TestVerifyIDToken_Expired(t *testing.T) {
	exp := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	srv := tokenInfoServer(t, http.StatusOK,
		`{"aud":"client-1","sub":"sub-123","exp":"`+exp+`"}`)

	v := &GoogleVerifier{ClientID: "client-1", TokenInfoURL: srv.URL}

	_, err := v.VerifyIDToken(t.Context(), "token")
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyIDToken_EmptyToken(t *testing.T) {
	v := NewGoogleVerifier("client-1")

	_, err := v.VerifyIDToken(t.Context(), "")
	if !errors.Is(err, ErrIDTokenRejected) {
		t.Errorf("error = %v, want ErrIDTokenRejected", err)
	}
}
