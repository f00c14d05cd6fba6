package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	LobbyCodeLength = 6
	lobbyCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var lobbyCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// CodeGenerator draws a candidate lobby code. Uniqueness is checked by the
// registry, not the generator.
type CodeGenerator func() (string, error)

func GenerateLobbyCode() (string, error) {
	code := make([]byte, LobbyCodeLength)
	max := big.NewInt(int64(len(lobbyCodeChars)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate lobby code: %w", err)
		}
		code[i] = lobbyCodeChars[n.Int64()]
	}
	return string(code), nil
}

func ValidLobbyCode(code string) bool {
	return lobbyCodePattern.MatchString(code)
}
