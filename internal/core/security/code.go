package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultCodeLength = 6
)

// CodeGenerator issues uppercase alphanumeric confirmation codes from
// crypto/rand.
type CodeGenerator struct {
	length int
}

func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &CodeGenerator{length: length}
}

// Generate returns a code drawn uniformly from codeAlphabet.
func (g *CodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, g.length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate confirmation code: %w", err)
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
