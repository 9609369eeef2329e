package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp/totp"
)

const backupCodeCount = 10

// GenerateMFASecret creates a fresh TOTP secret for the account and returns
// the secret together with the otpauth provisioning URL.
func GenerateMFASecret(account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP checks a time-based code against the stored secret.
func ValidateTOTP(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// GenerateBackupCodes produces single-use recovery codes. The plaintext codes
// are shown to the user once; only their SHA-256 hashes are stored.
func GenerateBackupCodes() (plain, hashes []string, err error) {
	plain = make([]string, backupCodeCount)
	hashes = make([]string, backupCodeCount)
	for i := range plain {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
		plain[i] = code
		hashes[i] = HashBackupCode(code)
	}
	return plain, hashes, nil
}

// HashBackupCode returns the hex-encoded SHA-256 digest of a recovery code.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// ConsumeBackupCode matches the code against the stored hashes and, on match,
// returns the remaining set with the matched hash removed.
func ConsumeBackupCode(hashes []string, code string) ([]string, bool) {
	if code == "" {
		return hashes, false
	}
	candidate := HashBackupCode(code)
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(candidate)) == 1 {
			remaining := make([]string, 0, len(hashes)-1)
			remaining = append(remaining, hashes[:i]...)
			remaining = append(remaining, hashes[i+1:]...)
			return remaining, true
		}
	}
	return hashes, false
}
