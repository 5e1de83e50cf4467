// Package domain contains entities without logic, just meta-data
// and the naming rules that apply to them.
package domain

import "strings"

const MaxNicknameLen = 24

// Identity is an opaque token naming one live transport connection.
// It is never reused once the owning connection closes.
type Identity string

type Role string

const (
	RoleUnknown  Role = "unknown"
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// NormalizeRole maps registration input to a concrete role.
// Anything other than exactly "sender" becomes a receiver.
func NormalizeRole(raw string) Role {
	if raw == string(RoleSender) {
		return RoleSender
	}
	return RoleReceiver
}

// Peer is the shared view of one connected participant.
type Peer struct {
	ID       Identity `json:"id"`
	Nickname string   `json:"nickname"`
	Role     Role     `json:"role"`
}

// PlaceholderNickname derives the default display name for a freshly
// admitted connection that has not registered yet.
func PlaceholderNickname(id Identity) string {
	short := string(id)
	if len(short) > 4 {
		short = short[:4]
	}
	return "guest-" + short
}

// SanitizeNickname trims, collapses internal whitespace runs to a single
// space and truncates to MaxNicknameLen. The result is stable: sanitizing
// an already-sanitized nickname returns it unchanged.
func SanitizeNickname(raw string) string {
	clean := strings.Join(strings.Fields(raw), " ")
	if r := []rune(clean); len(r) > MaxNicknameLen {
		clean = strings.TrimRight(string(r[:MaxNicknameLen]), " ")
	}
	return clean
}
