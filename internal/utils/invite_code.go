package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/yukikurage/chore-reward-api/internal/constants"
)

// GenerateInviteCode generates a random invite code such as "K7MPQ2XH".
// The alphabet omits characters that are easy to misread aloud (0/O, 1/I).
func GenerateInviteCode() (string, error) {
	alphabet := constants.InviteCodeAlphabet
	max := big.NewInt(int64(len(alphabet)))

	code := make([]byte, constants.InviteCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}

	return string(code), nil
}

// NormalizeInviteCode uppercases a user-typed code and strips separators.
func NormalizeInviteCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch >= 'a' && ch <= 'z':
			out = append(out, ch-'a'+'A')
		case ch == ' ' || ch == '-':
			continue
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
