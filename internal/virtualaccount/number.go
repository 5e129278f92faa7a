package virtualaccount

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// AccountNumberLength is the digit count of an issued account number, prefix included.
const AccountNumberLength = 14

// NumberGenerator returns a candidate account number. Uniqueness is enforced
// by the database; the issuer retries on collision.
type NumberGenerator func() (string, error)

// RandomNumbers fills the digits after prefix from crypto/rand.
func RandomNumbers(prefix string) NumberGenerator {
	prefix = strings.TrimSpace(prefix)
	n := AccountNumberLength - len(prefix)
	if n < 6 {
		n = 6
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	return func() (string, error) {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("random account number: %w", err)
		}
		return fmt.Sprintf("%s%0*d", prefix, n, v), nil
	}
}
