package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "elemgraph"

	// KeyringNeo4jPasswordItem is the key for the Neo4j password
	KeyringNeo4jPasswordItem = "neo4j-password"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *logrus.Entry
}

// NewKeyringManager creates a new keyring manager. A nil logger uses the
// standard logrus logger.
func NewKeyringManager(logger *logrus.Logger) *KeyringManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &KeyringManager{
		logger: logger.WithField("component", "keyring"),
	}
}

// SaveNeo4jPassword stores the Neo4j password in the OS keychain
// (Keychain on macOS, Credential Manager on Windows, Secret Service on Linux).
func (km *KeyringManager) SaveNeo4jPassword(password string) error {
	if password == "" {
		return fmt.Errorf("neo4j password cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringNeo4jPasswordItem, password); err != nil {
		km.logger.WithError(err).Error("Failed to save Neo4j password to keychain")
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.WithField("service", KeyringService).Info("Neo4j password saved to keychain")
	return nil
}

// GetNeo4jPassword retrieves the Neo4j password from the OS keychain.
// An unset password is returned as "".
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	password, err := keyring.Get(KeyringService, KeyringNeo4jPasswordItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.WithError(err).Error("Failed to get Neo4j password from keychain")
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}

	km.logger.Debug("Neo4j password retrieved from keychain")
	return password, nil
}

// DeleteNeo4jPassword removes the Neo4j password from the OS keychain
func (km *KeyringManager) DeleteNeo4jPassword() error {
	err := keyring.Delete(KeyringService, KeyringNeo4jPasswordItem)
	if err == keyring.ErrNotFound {
		// Already deleted
		return nil
	}
	if err != nil {
		km.logger.WithError(err).Error("Failed to delete Neo4j password from keychain")
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("Neo4j password deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems (CI/CD) without a secret service.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.WithError(err).Debug("Keychain not available")
		return false
	}
	return true
}

// PasswordSource reports where the effective Neo4j password comes from:
// "env", "keychain", "config" or "none".
func (km *KeyringManager) PasswordSource(cfg *Config) string {
	if os.Getenv("NEO4J_PASSWORD") != "" {
		return "env"
	}
	if stored, _ := km.GetNeo4jPassword(); stored != "" {
		return "keychain"
	}
	if cfg.Store.Neo4j.Password != "" {
		return "config"
	}
	return "none"
}

// MaskSecret masks a secret for display, keeping the first 3 and last 2
// characters of long values.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 8 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:3], secret[len(secret)-2:])
}
