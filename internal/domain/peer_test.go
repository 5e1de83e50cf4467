package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleSender, NormalizeRole("sender"))
	assert.Equal(t, RoleReceiver, NormalizeRole("receiver"))
	assert.Equal(t, RoleReceiver, NormalizeRole(""))
	assert.Equal(t, RoleReceiver, NormalizeRole("SENDER"))
	assert.Equal(t, RoleReceiver, NormalizeRole("admin"))
}

func TestSanitizeNickname(t *testing.T) {
	assert.Equal(t, "a b", SanitizeNickname("  a   b  "))
	assert.Equal(t, "", SanitizeNickname("   \t\n "))
	assert.Equal(t, strings.Repeat("x", 24), SanitizeNickname(strings.Repeat("x", 40)))

	// Truncation must not leave a trailing space behind.
	long := strings.Repeat("ab ", 20)
	got := SanitizeNickname(long)
	assert.LessOrEqual(t, len([]rune(got)), MaxNicknameLen)
	assert.Equal(t, got, strings.TrimSpace(got))
}

func TestSanitizeNicknameIdempotent(t *testing.T) {
	inputs := []string{"  a   b  ", "plain", strings.Repeat("word ", 10), "über  lang"}
	for _, in := range inputs {
		once := SanitizeNickname(in)
		assert.Equal(t, once, SanitizeNickname(once), "input %q", in)
	}
}

func TestPlaceholderNickname(t *testing.T) {
	assert.Equal(t, "guest-e3b1", PlaceholderNickname("e3b1c442-98fc-4a5b-9b1d"))
	assert.Equal(t, "guest-ab", PlaceholderNickname("ab"))
}

func TestRandomNickname(t *testing.T) {
	for range 20 {
		name := RandomNickname(RoleSender)
		assert.NotEmpty(t, name)
		assert.LessOrEqual(t, len(name), MaxNicknameLen)
	}
	assert.NotEqual(t, RandomNickname(RoleSender), "")
}
