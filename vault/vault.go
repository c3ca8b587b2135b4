package vault

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one of the vault's three lifecycle states.
type State int

const (
	StateUninitialized State = iota
	StateLocked
	StateUnlocked
)

// CredentialCache is an optional collaborator, typically backed by an OS
// keychain. The core treats every method as best-effort: Put/Delete failures are
// swallowed, and a Get that returns a key which fails to open the catalog
// is treated as "no cached key" by the caller.
type CredentialCache interface {
	Put(accountID string, key []byte) error
	Get(accountID string) ([]byte, error)
	Delete(accountID string) error
}

// Vault is the lifecycle state machine over one vault directory:
// Uninitialized (no config) -> Locked (config present, no key in memory)
// -> Unlocked (master key held). It is not reentrant, so every exported
// method takes the instance mutex for the duration of the call.
type Vault struct {
	mu sync.Mutex

	dir        string
	store      *store
	chunkSize  int
	iterations int

	cache          CredentialCache
	cacheAccountID string
	syncer         Syncer

	state     State
	masterKey []byte
	items     []Item

	failedAttempts int
	lockoutUntil   time.Time

	now func() time.Time
}

// NewVault constructs a service bound to dir. dir is created on first
// successful CreateVault; it is never resolved from process-global state.
func NewVault(dir string) *Vault {
	return &Vault{
		dir:        dir,
		store:      newStore(dir),
		chunkSize:  DefaultChunkSize,
		iterations: DefaultIterations,
		state:      StateUninitialized,
		now:        time.Now,
	}
}

// SetCredentialCache injects an optional OS keychain-style cache, keyed by
// accountID.
func (v *Vault) SetCredentialCache(cache CredentialCache, accountID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache = cache
	v.cacheAccountID = accountID
}

// SetSyncer injects an optional remote backup collaborator.
func (v *Vault) SetSyncer(s Syncer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.syncer = s
}

// State reports the vault's current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refreshState()
}

// refreshState reconciles v.state against the presence of vault-config.json.
// Must be called with v.mu held.
func (v *Vault) refreshState() State {
	if v.state == StateUnlocked {
		return v.state
	}
	cfg, err := v.store.loadConfig()
	if err == nil && cfg == nil {
		v.state = StateUninitialized
	} else if v.state == StateUninitialized {
		v.state = StateLocked
	}
	return v.state
}

// IsInitialized reports whether vault-config.json exists and decodes.
func (v *Vault) IsInitialized() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cfg, err := v.store.loadConfig()
	if err != nil {
		return false, err
	}
	return cfg != nil, nil
}

// CreateVault generates a fresh master key, wraps it under a password-
// derived KEK, and persists an empty catalog. iterations <= 0 selects
// DefaultIterations.
func (v *Vault) CreateVault(password []byte, iterations int) (*UnlockResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cfg, err := v.store.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return nil, ErrAlreadyInitialized
	}
	if iterations <= 0 {
		iterations = v.iterations
	}

	salt, err := randomBytes(SaltLen)
	if err != nil {
		return nil, err
	}
	kek, err := deriveKey(password, salt, iterations, KEKLen)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	masterKey, err := randomBytes(MasterKeyLen)
	if err != nil {
		return nil, err
	}

	wrapped, err := sealCombined(kek, masterKey, nil)
	if err != nil {
		zero(masterKey)
		return nil, err
	}

	newCfg := &Config{
		Version: ConfigVersion,
		KDF: KDFConfig{
			Algorithm:  KDFAlgorithm,
			SaltB64:    base64.StdEncoding.EncodeToString(salt),
			Iterations: iterations,
		},
		WrappedVaultKeyB64: base64.StdEncoding.EncodeToString(wrapped),
		CreatedAt:          v.now().UTC().Format(time.RFC3339),
	}
	if err := v.store.saveConfig(newCfg); err != nil {
		zero(masterKey)
		return nil, err
	}
	if err := v.store.saveItems([]Item{}, masterKey); err != nil {
		zero(masterKey)
		return nil, err
	}

	v.setUnlocked(masterKey, []Item{})
	return v.snapshot(), nil
}

// Unlock derives the KEK from password and unwraps the master key. A wrong
// password, a KDF failure, a wrapped key that does not open, and a catalog
// that does not open are all surfaced as the single WrongPasswordOrCorrupt
// error so external callers cannot learn which stage failed. A config with
// an unknown version or malformed base64 is reported as InvalidConfig, and
// an unknown KDF label as UnsupportedKDF.
func (v *Vault) Unlock(password []byte) (*UnlockResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cfg, err := v.store.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	if v.isLockedOut() {
		return nil, ErrLockedOut
	}
	if cfg.Version != ConfigVersion {
		return nil, ErrInvalidConfig
	}
	if cfg.KDF.Algorithm != KDFAlgorithm {
		return nil, ErrUnsupportedKDF
	}

	salt, err := base64.StdEncoding.DecodeString(cfg.KDF.SaltB64)
	if err != nil {
		return nil, ErrInvalidConfig
	}
	wrapped, err := base64.StdEncoding.DecodeString(cfg.WrappedVaultKeyB64)
	if err != nil {
		return nil, ErrInvalidConfig
	}

	kek, err := deriveKey(password, salt, cfg.KDF.Iterations, KEKLen)
	if err != nil {
		return nil, ErrWrongPasswordOrCorrupt
	}
	defer zero(kek)

	masterKey, err := openCombined(kek, wrapped)
	if err != nil {
		v.registerFailure()
		return nil, ErrWrongPasswordOrCorrupt
	}

	items, err := v.store.loadItems(masterKey)
	if err != nil {
		zero(masterKey)
		v.registerFailure()
		return nil, ErrWrongPasswordOrCorrupt
	}

	v.setUnlocked(masterKey, items)
	if v.cache != nil {
		_ = v.cache.Put(v.cacheAccountID, masterKey)
	}
	return v.snapshot(), nil
}

// UnlockFromCache treats key as an already-derived master key (e.g. read
// from an OS credential cache) and attempts to open the catalog with it.
// A bad key is treated as "no cached key": (nil, nil) is returned rather
// than an error, and the vault stays Locked.
func (v *Vault) UnlockFromCache(key []byte) (*UnlockResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(key) != MasterKeyLen {
		return nil, nil
	}
	cfg, err := v.store.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	masterKey := append([]byte(nil), key...)
	items, err := v.store.loadItems(masterKey)
	if err != nil {
		zero(masterKey)
		return nil, nil
	}

	v.setUnlocked(masterKey, items)
	return v.snapshot(), nil
}

// ChangePassword verifies cur, generates a fresh salt, and re-wraps the
// existing master key under a KEK derived from new. Payloads and the
// catalog are untouched; createdAt and the master key are preserved.
// iterations <= 0 preserves the config's current iteration count. On
// success the vault always ends Locked, requiring the caller to Unlock
// again with new.
func (v *Vault) ChangePassword(cur, next []byte, iterations int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	cfg, err := v.store.loadConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotInitialized
	}
	if cfg.Version != ConfigVersion {
		return ErrInvalidConfig
	}
	if cfg.KDF.Algorithm != KDFAlgorithm {
		return ErrUnsupportedKDF
	}

	salt, err := base64.StdEncoding.DecodeString(cfg.KDF.SaltB64)
	if err != nil {
		return ErrInvalidConfig
	}
	wrapped, err := base64.StdEncoding.DecodeString(cfg.WrappedVaultKeyB64)
	if err != nil {
		return ErrInvalidConfig
	}

	kek, err := deriveKey(cur, salt, cfg.KDF.Iterations, KEKLen)
	if err != nil {
		return err
	}
	masterKey, err := openCombined(kek, wrapped)
	zero(kek)
	if err != nil {
		return ErrWrongPasswordOrCorrupt
	}
	defer zero(masterKey)

	if iterations <= 0 {
		iterations = cfg.KDF.Iterations
	}
	newSalt, err := randomBytes(SaltLen)
	if err != nil {
		return err
	}
	newKek, err := deriveKey(next, newSalt, iterations, KEKLen)
	if err != nil {
		return err
	}
	defer zero(newKek)

	newWrapped, err := sealCombined(newKek, masterKey, nil)
	if err != nil {
		return err
	}

	newCfg := &Config{
		Version: cfg.Version,
		KDF: KDFConfig{
			Algorithm:  cfg.KDF.Algorithm,
			SaltB64:    base64.StdEncoding.EncodeToString(newSalt),
			Iterations: iterations,
		},
		WrappedVaultKeyB64: base64.StdEncoding.EncodeToString(newWrapped),
		CreatedAt:          cfg.CreatedAt,
	}
	if err := v.store.saveConfig(newCfg); err != nil {
		return err
	}

	v.lockLocked()
	return nil
}

// Lock discards the in-memory master key and catalog and purges the
// credential cache.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
	if v.cache != nil {
		_ = v.cache.Delete(v.cacheAccountID)
	}
	return nil
}

// AddFile stream-encrypts sourcePath into files/<uuid>.pvlt, appends an
// Item, and persists the catalog before returning. If the catalog save
// fails after the payload is written, the payload is removed best-effort;
// if that removal also fails, OrphanedPayload surfaces the need for manual
// cleanup.
func (v *Vault) AddFile(sourcePath string) (*Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return nil, err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	encName := id + ".pvlt"
	payloadPath, err := v.store.payloadPath(encName)
	if err != nil {
		return nil, err
	}

	if err := EncryptFile(v.masterKey, sourcePath, payloadPath, v.chunkSize); err != nil {
		return nil, err
	}

	base := filepath.Base(sourcePath)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")

	item := Item{
		ID:                    id,
		OriginalFileName:      base,
		OriginalFileExtension: ext,
		OriginalByteCount:     info.Size(),
		AddedAt:               v.now().UTC().Format(time.RFC3339),
		EncryptedFileName:     encName,
	}

	newItems := append(append([]Item(nil), v.items...), item)
	if err := v.store.saveItems(newItems, v.masterKey); err != nil {
		if rmErr := os.Remove(payloadPath); rmErr != nil {
			return nil, ErrOrphanedPayload
		}
		return nil, err
	}

	v.items = newItems
	out := item
	return &out, nil
}

// ExportItem stream-decrypts the payload belonging to item to destPath.
func (v *Vault) ExportItem(item Item, destPath string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return err
	}

	found, err := v.findItem(item.ID)
	if err != nil {
		return err
	}

	payloadPath, err := v.store.payloadPath(found.EncryptedFileName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(payloadPath); errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}

	return DecryptFile(v.masterKey, payloadPath, destPath)
}

// DeleteItem removes an item's payload (best effort) and rewrites the
// catalog without it.
func (v *Vault) DeleteItem(item Item) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return err
	}

	idx := -1
	for i, it := range v.items {
		if it.ID == item.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotFound
	}
	found := v.items[idx]

	payloadPath, err := v.store.payloadPath(found.EncryptedFileName)
	if err == nil {
		_ = os.Remove(payloadPath) // best effort
	}

	newItems := append(append([]Item(nil), v.items[:idx]...), v.items[idx+1:]...)
	if err := v.store.saveItems(newItems, v.masterKey); err != nil {
		return err
	}
	v.items = newItems
	return nil
}

// Items returns a copy of the current in-memory catalog.
func (v *Vault) Items() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Item(nil), v.items...)
}

func (v *Vault) findItem(id string) (Item, error) {
	for _, it := range v.items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, ErrNotFound
}

func (v *Vault) requireUnlocked() error {
	switch v.refreshState() {
	case StateUninitialized:
		return ErrNotInitialized
	case StateLocked:
		return ErrLocked
	default:
		return nil
	}
}

func (v *Vault) setUnlocked(masterKey []byte, items []Item) {
	v.masterKey = masterKey
	v.items = items
	v.state = StateUnlocked
	v.failedAttempts = 0
}

func (v *Vault) lockLocked() {
	if v.masterKey != nil {
		zero(v.masterKey)
		v.masterKey = nil
	}
	v.items = nil
	v.state = StateLocked
}

func (v *Vault) snapshot() *UnlockResult {
	return &UnlockResult{
		MasterKey: append([]byte(nil), v.masterKey...),
		Items:     append([]Item(nil), v.items...),
	}
}

// registerFailure implements the brute-force attenuation of Unlock: five
// consecutive failed unlocks arm a 60-second lockout. Only a successful
// unlock resets the counter, so each further failure after the window has
// passed re-arms it at once.
func (v *Vault) registerFailure() {
	v.failedAttempts++
	if v.failedAttempts >= maxLockoutFailures {
		v.lockoutUntil = v.now().Add(lockoutDuration)
	}
}

func (v *Vault) isLockedOut() bool {
	return v.failedAttempts >= maxLockoutFailures && v.now().Before(v.lockoutUntil)
}
