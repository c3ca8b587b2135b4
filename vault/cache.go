package vault

import "sync"

// MemoryCredentialCache is a process-memory CredentialCache, handy for
// tests and for hosts that have no OS keychain available. Get on an
// unknown account returns (nil, nil) rather than an error.
type MemoryCredentialCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryCredentialCache() *MemoryCredentialCache {
	return &MemoryCredentialCache{data: make(map[string][]byte)}
}

func (c *MemoryCredentialCache) Put(accountID string, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[accountID] = append([]byte(nil), key...)
	return nil
}

func (c *MemoryCredentialCache) Get(accountID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.data[accountID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), key...), nil
}

func (c *MemoryCredentialCache) Delete(accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.data[accountID]; ok {
		zero(key)
		delete(c.data, accountID)
	}
	return nil
}
