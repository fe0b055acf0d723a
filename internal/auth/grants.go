package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/mqtt"
)

// Access describes what a grant permits on matching topics.
type Access string

const (
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "readwrite"
)

// TopicGrant is a single capability entry in a bus token: a topic
// pattern and the access level granted on topics matching it.
//
// Patterns are broker ACL globs: either an exact topic name or a
// prefix followed by a trailing "*" (e.g. "box-*"). They are not MQTT
// subscription wildcards; the broker's auth plugin evaluates them
// against each subscribe and publish.
type TopicGrant struct {
	Pattern string `json:"pattern"`
	Access  Access `json:"access"`
}

// BusClaims are the claims carried by bus capability tokens.
//
// A bus token authenticates a principal to the message broker and
// enumerates exactly which topics it may read and write. Tokens expire
// at their TTL and are never silently renewed; clients must request a
// fresh token through the API.
type BusClaims struct {
	jwt.RegisteredClaims
	Role   Role         `json:"role"`
	Grants []TopicGrant `json:"grants"`
}

// GrantsForUser returns the topic grants for a signed-in box owner:
// read access to their personal notification topic only.
func GrantsForUser(userID int64) []TopicGrant {
	return []TopicGrant{
		{Pattern: mqtt.Topics{}.UserNotification(userID), Access: AccessRead},
	}
}

// GrantsForHardware returns the topic grants for a box agent: read
// access to its own command topics, write access to the delivery topic
// and to user notification topics.
func GrantsForHardware(boxID int64) []TopicGrant {
	topics := mqtt.Topics{}
	return []TopicGrant{
		{Pattern: topics.BoxCommand(boxID), Access: AccessRead},
		{Pattern: topics.LoadCellControl(boxID), Access: AccessRead},
		{Pattern: topics.ParcelDelivery(), Access: AccessWrite},
		{Pattern: mqtt.PatternAllUsers, Access: AccessWrite},
	}
}

// GrantsForServer returns the topic grants for the coordination core:
// read and write on every topic class.
func GrantsForServer() []TopicGrant {
	return []TopicGrant{
		{Pattern: mqtt.PatternAllBoxes, Access: AccessReadWrite},
		{Pattern: mqtt.PatternAllLoadCells, Access: AccessReadWrite},
		{Pattern: mqtt.PatternAllUsers, Access: AccessReadWrite},
		{Pattern: mqtt.Topics{}.ParcelDelivery(), Access: AccessReadWrite},
	}
}

// GenerateBusToken creates a signed bus capability token.
//
// Parameters:
//   - role: Principal class the token is issued for
//   - subject: Stable identifier of the principal (user ID, box ID, or
//     service name)
//   - grants: Topic grants embedded in the token
//   - secret: HMAC signing secret shared with the broker auth plugin
//   - ttlMinutes: Token lifetime
func GenerateBusToken(role Role, subject string, grants []TopicGrant, secret string, ttlMinutes int) (string, error) {
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, role)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = 720 //nolint:mnd // default 12-hour bus token TTL
	}

	now := time.Now()
	claims := BusClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Role:   role,
		Grants: grants,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing bus token: %w", err)
	}
	return signed, nil
}

// BusTokenForUser issues a capability token scoped to a user's
// notification topic.
func BusTokenForUser(userID int64, secret string, ttlMinutes int) (string, error) {
	return GenerateBusToken(RoleUser, strconv.FormatInt(userID, 10), GrantsForUser(userID), secret, ttlMinutes)
}

// BusTokenForHardware issues a capability token for a box agent.
func BusTokenForHardware(boxID int64, secret string, ttlMinutes int) (string, error) {
	return GenerateBusToken(RoleHardware, strconv.FormatInt(boxID, 10), GrantsForHardware(boxID), secret, ttlMinutes)
}

// BusTokenForServer issues a full-access capability token for the core.
func BusTokenForServer(serviceName, secret string, ttlMinutes int) (string, error) {
	return GenerateBusToken(RoleServer, serviceName, GrantsForServer(), secret, ttlMinutes)
}

// ParseBusToken validates and parses a bus capability token.
func ParseBusToken(tokenString, secret string) (*BusClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BusClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*BusClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}

// AllowsRead reports whether the claims grant read access to a topic.
func (c *BusClaims) AllowsRead(topic string) bool {
	return c.allows(topic, AccessRead)
}

// AllowsWrite reports whether the claims grant write access to a topic.
func (c *BusClaims) AllowsWrite(topic string) bool {
	return c.allows(topic, AccessWrite)
}

func (c *BusClaims) allows(topic string, want Access) bool {
	for _, g := range c.Grants {
		if !matchPattern(g.Pattern, topic) {
			continue
		}
		if g.Access == AccessReadWrite || g.Access == want {
			return true
		}
	}
	return false
}

// matchPattern matches a topic against an ACL glob. Only a trailing
// "*" is treated as a wildcard.
func matchPattern(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}
