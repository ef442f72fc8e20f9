// Package seeds owns the provably fair seed state: custody of the secret
// server seed, the player-editable client seed, and the per-round nonce.
// Only the server seed's SHA-256 hash leaves this package until a rotation
// reveals the plaintext.
package seeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const vaultKey = "server_seed"

// Vault keeps the active server seed in the OS keyring, with a JSON file
// fallback for environments where no keyring is available.
type Vault struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewVault creates a vault under the given keyring service name.
func NewVault(service, fallbackPath string) *Vault {
	if strings.TrimSpace(service) == "" {
		service = "trapgrid"
	}
	return &Vault{
		service:      service,
		fallbackPath: fallbackPath,
	}
}

// Store saves the server seed.
func (v *Vault) Store(seed string) error {
	if err := keyring.Set(v.service, vaultKey, seed); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("seeds: keyring set: %w", err)
	}
	return v.setFallback(seed)
}

// Load returns the stored server seed; ok is false when none exists yet.
func (v *Vault) Load() (string, bool, error) {
	seed, err := keyring.Get(v.service, vaultKey)
	if err == nil {
		return seed, true, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", false, fmt.Errorf("seeds: keyring get: %w", err)
	}

	seed, ok, ferr := v.getFallback()
	if ferr != nil {
		return "", false, ferr
	}
	if ok {
		return seed, true, nil
	}
	return "", false, nil
}

// Delete removes the stored server seed from the keyring and the fallback.
func (v *Vault) Delete() error {
	if err := keyring.Delete(v.service, vaultKey); err != nil &&
		!errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("seeds: keyring delete: %w", err)
	}
	return v.deleteFallback()
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "the specified item could not be found in the keychain") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackSecrets map[string]string

func (v *Vault) setFallback(seed string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return fmt.Errorf("seeds: keyring unavailable and no fallback path configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[vaultKey] = seed
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback() (string, bool, error) {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return "", false, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return "", false, err
	}
	seed, ok := data[vaultKey]
	return seed, ok, nil
}

func (v *Vault) deleteFallback() error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	delete(data, vaultKey)
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("seeds: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("seeds: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data fallbackSecrets) error {
	dir := filepath.Dir(v.fallbackPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("seeds: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("seeds: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("seeds: write fallback secrets: %w", err)
	}
	return nil
}
