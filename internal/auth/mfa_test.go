package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestTOTPSecretRoundTrip(t *testing.T) {
	secret, url, err := GenerateMFASecret("ada@example.com")
	if err != nil {
		t.Fatalf("GenerateMFASecret: %v", err)
	}
	if secret == "" || url == "" {
		t.Fatal("expected secret and provisioning url")
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !ValidateTOTP(secret, code) {
		t.Fatal("valid code rejected")
	}
	if ValidateTOTP(secret, "000000") && code != "000000" {
		t.Fatal("arbitrary code accepted")
	}
	if ValidateTOTP("", code) {
		t.Fatal("empty secret accepted a code")
	}
	if ValidateTOTP(secret, "") {
		t.Fatal("empty code accepted")
	}
}

func TestBackupCodesAreSingleUse(t *testing.T) {
	plain, hashes, err := GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(plain) != backupCodeCount || len(hashes) != backupCodeCount {
		t.Fatalf("unexpected code counts: %d plain, %d hashes", len(plain), len(hashes))
	}
	for i, code := range plain {
		if HashBackupCode(code) != hashes[i] {
			t.Fatalf("hash mismatch at index %d", i)
		}
		if code == hashes[i] {
			t.Fatal("plaintext code stored as its own hash")
		}
	}

	remaining, ok := ConsumeBackupCode(hashes, plain[0])
	if !ok {
		t.Fatal("valid backup code rejected")
	}
	if len(remaining) != backupCodeCount-1 {
		t.Fatalf("matched hash not removed: %d remaining", len(remaining))
	}
	if _, ok := ConsumeBackupCode(remaining, plain[0]); ok {
		t.Fatal("backup code accepted twice")
	}
	if _, ok := ConsumeBackupCode(remaining, "bogus"); ok {
		t.Fatal("unknown code accepted")
	}
}
