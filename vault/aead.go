package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
)

// sealCombined seals plaintext under key with AES-256-GCM and returns the
// combined representation nonce(12) || ciphertext || tag(16). If nonce is
// nil, a fresh random nonce is generated; if non-nil it must be exactly
// gcmNonceLen bytes (used by the PVLT1 codec to impose per-chunk nonces).
func sealCombined(key, plaintext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if nonce == nil {
		nonce = make([]byte, gcmNonceLen)
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, err
		}
	} else if len(nonce) != gcmNonceLen {
		return nil, ErrMalformed
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+gcmTagLen)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// openCombined splits combined into its leading nonce and trailing tag and
// opens it under key. Returns ErrMalformed if combined is shorter than
// gcmNonceLen+gcmTagLen, ErrAuthFailure on tag mismatch.
func openCombined(key, combined []byte) ([]byte, error) {
	if len(combined) < combinedMinLen {
		return nil, ErrMalformed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := combined[:gcmNonceLen]
	ct := combined[gcmNonceLen:]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return pt, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
