package vault

import "errors"

// ErrNoSyncer is returned by Push/Pull when no remote syncer was injected.
var ErrNoSyncer = errors.New("vault: no syncer configured")

// Syncer replicates a vault directory to and from a remote. Implementations
// only ever see the already-encrypted on-disk tree (vault-config.json,
// items.json.pvlt, files/*.pvlt); plaintext never crosses this interface.
type Syncer interface {
	// Pull downloads the latest remote copy into vaultDir, replacing
	// local files.
	Pull(vaultDir string) error

	// Push uploads the current contents of vaultDir to the remote.
	Push(vaultDir string) error
}

// Push uploads the on-disk vault tree via the injected Syncer.
func (v *Vault) Push() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.syncer == nil {
		return ErrNoSyncer
	}
	return v.syncer.Push(v.dir)
}

// Pull replaces the local vault tree with the remote copy. The vault is
// locked first so the in-memory catalog cannot diverge from the files the
// pull rewrites; the caller must unlock again afterwards.
func (v *Vault) Pull() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.syncer == nil {
		return ErrNoSyncer
	}
	v.lockLocked()
	return v.syncer.Pull(v.dir)
}
