package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

// CodeLength is the number of digits in a login code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns CodeLength uniformly random decimal digits. Leading
// zeros are kept.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("auth: generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Hasher produces keyed BLAKE2b digests of login codes and issued tokens
// so neither is stored in the clear. The key is derived from the
// application secret; rotating the secret invalidates pending codes.
type Hasher struct {
	key []byte
}

// NewHasher derives a 32-byte MAC key from secret.
func NewHasher(secret string) *Hasher {
	sum := blake2b.Sum256([]byte("bookclub/hasher:" + secret))
	return &Hasher{key: sum[:]}
}

// HashCode digests a code together with the identifier it was sent to, so
// the same six digits sent to two people produce different digests.
func (h *Hasher) HashCode(identifier, code string) string {
	return h.sum(identifier + "\x00" + code)
}

// HashToken digests an issued access token for the audit table.
func (h *Hasher) HashToken(token string) string {
	return h.sum(token)
}

func (h *Hasher) sum(s string) string {
	// New256 only fails for keys longer than 64 bytes.
	mac, err := blake2b.New256(h.key)
	if err != nil {
		panic(err)
	}
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}
