package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Secrets maps secret_ref names to signing keys. The file is YAML with 0600
// permissions and may carry a BLAKE3 lock file guarding against tampering.
type Secrets struct {
	keys map[string]string
}

// LockManifest is the on-disk format of the <secrets>.lock sidecar.
type LockManifest struct {
	Version     int    `yaml:"version"`
	GeneratedAt string `yaml:"generated_at"`
	Hash        string `yaml:"hash"`
}

type secretsFile struct {
	Keys map[string]string `yaml:"keys"`
}

// LoadSecrets reads the secrets file. When locked is true the file must match
// the BLAKE3 hash recorded in its lock sidecar.
func LoadSecrets(path string, locked bool) (*Secrets, error) {
	if locked {
		if err := verifyLock(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var file secretsFile
	if err := yaml.Unmarshal([]byte(interpolated), &file); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}

	for name, key := range file.Keys {
		if key == "" {
			return nil, fmt.Errorf("secrets: key %q is empty", name)
		}
		if envVarPattern.MatchString(key) {
			matches := envVarPattern.FindStringSubmatch(key)
			return nil, fmt.Errorf("secrets: key %q: environment variable ${%s} is not set", name, matches[1])
		}
	}

	return &Secrets{keys: file.Keys}, nil
}

// Get returns the signing key for a secret_ref name.
func (s *Secrets) Get(name string) (string, error) {
	key, ok := s.keys[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return key, nil
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// WriteLock records the current BLAKE3 hash of the secrets file in its lock
// sidecar. Run after any intentional edit.
func WriteLock(path string) error {
	hash, err := ComputeBlake3Hash(path)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", filepath.Base(path), err)
	}

	manifest := LockManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hash:        hash,
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal lock manifest: %w", err)
	}

	if err := os.WriteFile(lockPath(path), data, 0600); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func verifyLock(path string) error {
	data, err := os.ReadFile(lockPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("secrets lock file not found (run 'edged secrets lock')")
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	var manifest LockManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse lock file: %w", err)
	}
	if manifest.Version != 1 {
		return fmt.Errorf("unsupported lock file version: %d", manifest.Version)
	}

	actual, err := ComputeBlake3Hash(path)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != manifest.Hash {
		return fmt.Errorf("secrets verification failed for %s: hash mismatch\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: edged secrets lock", filepath.Base(path))
	}

	return nil
}

func lockPath(path string) string {
	return path + ".lock"
}
