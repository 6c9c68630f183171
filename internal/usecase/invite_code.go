package usecase

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
)

// InviteCodeGenerator produces candidate league invite codes.
type InviteCodeGenerator interface {
	NewCode() (string, error)
}

// RandomCodeGenerator draws each character uniformly from the base-36 alphabet.
type RandomCodeGenerator struct {
	reader io.Reader
}

func NewRandomCodeGenerator() *RandomCodeGenerator {
	return &RandomCodeGenerator{reader: rand.Reader}
}

func (g *RandomCodeGenerator) NewCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(league.CodeAlphabet)))
	out := make([]byte, league.CodeLength)
	for i := range out {
		n, err := rand.Int(g.reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("read random bytes for invite code: %w", err)
		}
		out[i] = league.CodeAlphabet[n.Int64()]
	}
	return string(out), nil
}
