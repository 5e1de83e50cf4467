package domain

import (
	"fmt"
	"math/rand/v2"
)

var nicknameAdjectives = []string{
	"Swift", "Quiet", "Silver", "Bright", "Calm", "Rapid", "Neat", "Clear",
}

var senderNouns = []string{
	"Sparrow", "Robin", "Wren", "Finch", "Lark", "Piper",
}

var receiverNouns = []string{
	"Cedar", "Maple", "Willow", "Oak", "Birch", "Pine",
}

// RandomNickname picks a role-flavored display name, e.g. "Swift-Wren-417"
// for senders or "Calm-Oak-203" for receivers.
func RandomNickname(role Role) string {
	nouns := receiverNouns
	if role == RoleSender {
		nouns = senderNouns
	}
	adj := nicknameAdjectives[rand.IntN(len(nicknameAdjectives))]
	noun := nouns[rand.IntN(len(nouns))]
	return fmt.Sprintf("%s-%s-%d", adj, noun, 100+rand.IntN(900))
}
