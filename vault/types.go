// Package vault implements the password-protected file vault's encryption
// core: key hierarchy, encrypted catalog, and the chunked PVLT1 container.
package vault

import (
	"errors"
	"time"
)

const (
	// MasterKeyLen is the size in bytes of the vault's master key (K_m).
	MasterKeyLen = 32
	// KEKLen is the size in bytes of a derived key-encryption key.
	KEKLen = 32
	// SaltLen is the size in bytes of a freshly generated KDF salt.
	SaltLen = 16

	gcmNonceLen    = 12
	gcmTagLen      = 16
	combinedMinLen = gcmNonceLen + gcmTagLen // 28

	// DefaultIterations is used by CreateVault when the caller does not
	// supply an iteration count; ChangePassword keeps the config's count
	// instead.
	DefaultIterations = 200000
	// DefaultChunkSize is the plaintext size used for non-final PVLT1 chunks.
	DefaultChunkSize = 1 << 20 // 1,048,576

	// KDFAlgorithm is the only KDF label this version accepts.
	KDFAlgorithm = "PBKDF2-HMAC-SHA256"
	// ConfigVersion is the vault-config.json schema version written by
	// this implementation.
	ConfigVersion = 1

	pvltMagic     = "PVLT1"
	pvltHeaderLen = 29 // 5 + 4 + 8 + 8 + 4

	maxLockoutFailures = 5
	lockoutDuration    = 60 * time.Second

	configFileName = "vault-config.json"
	itemsFileName  = "items.json.pvlt"
	filesDirName   = "files"
)

var (
	ErrNotInitialized         = errors.New("vault: not initialized")
	ErrAlreadyInitialized     = errors.New("vault: already initialized")
	ErrLocked                 = errors.New("vault: locked")
	ErrInvalidConfig          = errors.New("vault: invalid config")
	ErrUnsupportedKDF         = errors.New("vault: unsupported kdf")
	ErrWrongPasswordOrCorrupt = errors.New("vault: wrong password or corrupt vault")
	ErrLockedOut              = errors.New("vault: locked out, try again later")
	ErrCorrupt                = errors.New("vault: corrupt file")
	ErrAuthFailure            = errors.New("vault: authentication failed")
	ErrInvalidMagic           = errors.New("vault: invalid magic")
	ErrMalformed              = errors.New("vault: malformed pvlt container")
	ErrUnexpectedEOF          = errors.New("vault: unexpected end of file")
	ErrTrailingGarbage        = errors.New("vault: trailing garbage after last chunk")
	ErrNonceMismatch          = errors.New("vault: chunk nonce mismatch")
	ErrSizeMismatch           = errors.New("vault: decoded size does not match header")
	ErrOrphanedPayload        = errors.New("vault: payload written but catalog save failed")
	ErrInvalidIterations      = errors.New("vault: invalid iteration count")
	ErrInvalidKeyLength       = errors.New("vault: invalid key length")
	ErrNotFound               = errors.New("vault: item not found")
)

// Item is a single catalog entry: metadata about one encrypted payload
// living under files/<encryptedFileName>.
type Item struct {
	ID                    string `json:"id"`
	OriginalFileName      string `json:"originalFileName"`
	OriginalFileExtension string `json:"originalFileExtension,omitempty"`
	OriginalByteCount     int64  `json:"originalByteCount"`
	AddedAt               string `json:"addedAt"`
	EncryptedFileName     string `json:"encryptedFileName"`
}

// KDFConfig is the KDF section of vault-config.json.
type KDFConfig struct {
	Algorithm  string `json:"algorithm"`
	SaltB64    string `json:"saltB64"`
	Iterations int    `json:"iterations"`
}

// Config is the plaintext vault-config.json document.
type Config struct {
	Version            int       `json:"version"`
	KDF                KDFConfig `json:"kdf"`
	WrappedVaultKeyB64 string    `json:"wrappedVaultKeyB64"`
	CreatedAt          string    `json:"createdAt"`
}

// UnlockResult is returned by every operation that transitions the vault
// into the Unlocked state.
type UnlockResult struct {
	MasterKey []byte
	Items     []Item
}

// zero overwrites a byte slice in place. Used to scrub master keys, KEKs,
// and passwords from memory as soon as they are no longer needed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
