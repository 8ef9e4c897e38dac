package services

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Owner identifies who a cart or wishlist row belongs to: an authenticated
// user or a guest session, never both. It is threaded explicitly through the
// cart and wishlist APIs instead of being re-derived from request state.
type Owner struct {
	userID    uuid.UUID
	sessionID string
}

// UserOwner builds the owner identity for an authenticated user.
func UserOwner(userID uuid.UUID) Owner {
	return Owner{userID: userID}
}

// GuestOwner builds the owner identity for an anonymous session.
func GuestOwner(sessionID string) Owner {
	return Owner{sessionID: sessionID}
}

// IsUser reports whether the owner is an authenticated user.
func (o Owner) IsUser() bool {
	return o.userID != uuid.Nil
}

// UserID returns the user id for user owners, uuid.Nil otherwise.
func (o Owner) UserID() uuid.UUID {
	return o.userID
}

// Key returns the stable string persisted on cart/wishlist rows.
func (o Owner) Key() string {
	if o.IsUser() {
		return "user:" + o.userID.String()
	}
	return "guest:" + o.sessionID
}

// Valid reports whether the owner carries an identity at all.
func (o Owner) Valid() bool {
	return o.userID != uuid.Nil || strings.TrimSpace(o.sessionID) != ""
}

// OptionsFingerprint canonicalizes selected variant options so that the same
// selections always map to the same cart line. Empty options fingerprint to
// the empty string.
func OptionsFingerprint(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(options[k])
		sb.Write(keyJSON)
		sb.WriteByte(':')
		sb.Write(valJSON)
	}
	sb.WriteByte('}')
	return sb.String()
}
