package auth

import (
	"errors"
	"testing"
)

func TestGrantsForUser(t *testing.T) {
	grants := GrantsForUser(42)

	if len(grants) != 1 {
		t.Fatalf("len(grants) = %d, want 1", len(grants))
	}
	if grants[0].Pattern != "user-42" {
		t.Errorf("pattern = %q, want user-42", grants[0].Pattern)
	}
	if grants[0].Access != AccessRead {
		t.Errorf("access = %q, want read", grants[0].Access)
	}
}

func TestGrantsForHardware(t *testing.T) {
	claims := &BusClaims{Grants: GrantsForHardware(7)}

	tests := []struct {
		name  string
		topic string
		read  bool
		write bool
	}{
		{"own command topic", "box-7", true, false},
		{"own load cell topic", "load-cell-control-7", true, false},
		{"foreign command topic", "box-8", false, false},
		{"delivery topic", "parcel-delivery", false, true},
		{"user notification", "user-42", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := claims.AllowsRead(tt.topic); got != tt.read {
				t.Errorf("AllowsRead(%q) = %v, want %v", tt.topic, got, tt.read)
			}
			if got := claims.AllowsWrite(tt.topic); got != tt.write {
				t.Errorf("AllowsWrite(%q) = %v, want %v", tt.topic, got, tt.write)
			}
		})
	}
}

func TestGrantsForServer(t *testing.T) {
	claims := &BusClaims{Grants: GrantsForServer()}

	for _, topic := range []string{"box-1", "load-cell-control-9", "user-3", "parcel-delivery"} {
		if !claims.AllowsRead(topic) {
			t.Errorf("server should read %q", topic)
		}
		if !claims.AllowsWrite(topic) {
			t.Errorf("server should write %q", topic)
		}
	}
}

func TestBusTokenRoundTrip(t *testing.T) {
	token, err := BusTokenForHardware(7, testSecret, 60)
	if err != nil {
		t.Fatalf("BusTokenForHardware() error = %v", err)
	}

	claims, err := ParseBusToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseBusToken() error = %v", err)
	}

	if claims.Role != RoleHardware {
		t.Errorf("Role = %q, want hardware", claims.Role)
	}
	if claims.Subject != "7" {
		t.Errorf("Subject = %q, want 7", claims.Subject)
	}
	if !claims.AllowsRead("box-7") {
		t.Error("parsed token should allow reading box-7")
	}
	if claims.AllowsRead("box-8") {
		t.Error("parsed token should not allow reading box-8")
	}
}

func TestGenerateBusToken_InvalidRole(t *testing.T) {
	_, err := GenerateBusToken(Role("admin"), "x", nil, testSecret, 60)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseBusToken_WrongSecret(t *testing.T) {
	token, err := BusTokenForUser(1, testSecret, 60)
	if err != nil {
		t.Fatalf("BusTokenForUser() error = %v", err)
	}

	_, err = ParseBusToken(token, "another-secret-that-is-long-enough-1234")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"box-7", "box-7", true},
		{"box-7", "box-77", false},
		{"box-*", "box-7", true},
		{"box-*", "box-77", true},
		{"box-*", "load-cell-control-7", false},
		{"user-*", "user-1", true},
		{"parcel-delivery", "parcel-delivery", true},
	}

	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}
