package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet deliberately drops characters that read ambiguously
// when written on paper at a handoff (0/O, 1/I/L, 5/S, 8/B, 2/Z).
const codeAlphabet = "ACDEFGHJKMNPQRTUVWXY34679"

// CodeLength is the fixed length of a delivery verification code.
const CodeLength = 6

// NewVerificationCode draws a 6-character code from crypto/rand.
func NewVerificationCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw verification code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NewCodePair returns a distinct (buyer, seller) code pair. Identical
// codes would let one party complete both halves of the handshake.
func NewCodePair() (buyerCode, sellerCode string, err error) {
	buyerCode, err = NewVerificationCode()
	if err != nil {
		return "", "", err
	}
	for {
		sellerCode, err = NewVerificationCode()
		if err != nil {
			return "", "", err
		}
		if sellerCode != buyerCode {
			return buyerCode, sellerCode, nil
		}
	}
}

// NormalizeCode prepares user input for comparison: codes are
// case-insensitive and whitespace around them is ignored.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
