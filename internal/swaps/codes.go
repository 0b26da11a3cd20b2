package swaps

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// codeAlphabet omits ambiguous characters (0/O, 1/I/L) so codes survive being
// read over the phone or written on a package.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	deliveryCodeLength     = 8
	verificationCodeLength = 6
)

// generateCode draws length characters from the alphabet with crypto/rand.
func generateCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}

// hashCode is the stored form of the verification code. The clear text leaves
// the system exactly once, in the delivery setup event.
func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// matchCode compares a presented code against the stored hash in constant time.
func matchCode(code, storedHash string) bool {
	presented := hashCode(code)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
