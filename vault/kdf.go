package vault

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// deriveKey runs PBKDF2-HMAC-SHA256 (RFC 8018) over password and salt,
// producing keyLen bytes. password is zeroized before returning: the core
// consumes password bytes and does not retain them beyond this call.
func deriveKey(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	defer zero(password)
	if iterations <= 0 {
		return nil, ErrInvalidIterations
	}
	if keyLen <= 0 {
		return nil, ErrInvalidKeyLength
	}
	key := pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
	return key, nil
}
