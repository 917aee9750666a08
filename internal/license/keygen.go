// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"
)

// MinKeyLength для проверки без Keygen.
const MinKeyLength = 8

// Settings describes how the operator license is checked.
type Settings struct {
	Key          string
	AccountID    string
	ProductToken string
	ProductID    string
}

func (s Settings) keygenConfigured() bool {
	return s.AccountID != "" && s.ProductToken != "" && s.ProductID != ""
}

// Validate checks the license with Keygen.sh when its credentials are set and
// falls back to a basic key check otherwise.
func Validate(ctx context.Context, s Settings, logger *zap.Logger) error {
	if s.keygenConfigured() {
		validator := NewKeygenValidator(s.AccountID, s.ProductToken, s.ProductID, logger)
		if err := validator.ValidateLicense(ctx, s.Key); err != nil {
			return fmt.Errorf("keygen validation failed: %w", err)
		}
		return nil
	}
	return ValidateSimple(s.Key, logger)
}

// ValidateSimple performs basic license validation (fallback)
func ValidateSimple(key string, logger *zap.Logger) error {
	if key == "" {
		return errors.New("license key is required")
	}
	if len(key) < MinKeyLength {
		return errors.New("license key is too short")
	}
	logger.Info("✅ License validated (basic mode)")
	return nil
}

// KeygenValidator handles license validation using Keygen.sh
type KeygenValidator struct {
	logger    *zap.Logger
	accountID string
	productID string
}

// NewKeygenValidator creates a new Keygen license validator
func NewKeygenValidator(accountID, productToken, productID string, logger *zap.Logger) *KeygenValidator {
	keygen.Account = accountID
	keygen.Product = productID
	keygen.Token = productToken

	return &KeygenValidator{
		logger:    logger.Named("license"),
		accountID: accountID,
		productID: productID,
	}
}

// ValidateLicense validates a license key with Keygen, activating this
// machine when the license is not yet bound to it.
func (kv *KeygenValidator) ValidateLicense(ctx context.Context, licenseKey string) error {
	if len(licenseKey) < MinKeyLength {
		return errors.New("license key is too short")
	}
	kv.logger.Info("🔑 Validating license: " + licenseKey[:MinKeyLength] + "...")

	fingerprint, err := Fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}

	keygen.LicenseKey = licenseKey

	license, err := keygen.Validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		kv.logger.Info("License not activated, attempting activation")
		machine, activateErr := license.Activate(ctx, fingerprint)
		if activateErr != nil {
			return fmt.Errorf("failed to activate license: %w", activateErr)
		}
		kv.logger.Info("License activated successfully",
			zap.String("machine_id", machine.ID),
			zap.String("fingerprint", fingerprint),
		)

	case errors.Is(err, keygen.ErrLicenseExpired):
		return errors.New("license has expired")

	case err != nil:
		return fmt.Errorf("license validation failed: %w", err)
	}

	if license == nil {
		return errors.New("license not found")
	}

	kv.logger.Info("License validation successful", zap.String("license_id", license.ID))
	return nil
}

// Fingerprint hashes hostname, the first active MAC address and the OS.
func Fingerprint() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var mac string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			mac = iface.HardwareAddr.String()
			break
		}
	}
	if mac == "" {
		return "", errors.New("no network interfaces found")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", hostname, mac, runtime.GOOS)))
	return fmt.Sprintf("%x", hash), nil
}
