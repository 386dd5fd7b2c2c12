package coupon

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	randomCodeLength = 8
)

// GenerateCode returns the normalised prefix followed by 8 random characters from [A-Z0-9].
func GenerateCode(prefix string) (string, error) {
	prefix = NormalizeCode(prefix)
	if len(prefix)+randomCodeLength > maxCodeLength {
		return "", fmt.Errorf("code prefix %q is too long", prefix)
	}

	buf := make([]byte, randomCodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate coupon code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}
