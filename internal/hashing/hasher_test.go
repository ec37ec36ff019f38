package hashing

import (
	"strings"
	"testing"

	"admin-auth-service/internal/config"
)

func testHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestBackupCodeRoundTrip(t *testing.T) {
	h := testHasher()

	encoded, err := h.HashBackupCode("A3F9K2LM")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, encodedPrefix) {
		t.Fatalf("encoded hash missing prefix: %s", encoded)
	}
	if strings.Contains(encoded, "A3F9K2LM") {
		t.Fatal("plaintext code leaked into the encoding")
	}

	ok, err := h.VerifyBackupCode("A3F9K2LM", encoded)
	if err != nil || !ok {
		t.Fatalf("verify = %v, %v, want match", ok, err)
	}

	ok, err = h.VerifyBackupCode("B7Q2XXYZ", encoded)
	if err != nil {
		t.Fatalf("verify wrong code: %v", err)
	}
	if ok {
		t.Fatal("wrong code must not match")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := testHasher()

	first, err := h.HashBackupCode("A3F9K2LM")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := h.HashBackupCode("A3F9K2LM")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same code must differ")
	}
}

func TestVerifyRejectsMalformedEncoding(t *testing.T) {
	h := testHasher()

	for _, encoded := range []string{"", "garbage", "argon2id-v1$only-one-part"} {
		if _, err := h.VerifyBackupCode("A3F9K2LM", encoded); err == nil {
			t.Fatalf("encoding %q should be rejected", encoded)
		}
	}
}

func TestHashSessionTokenIsDeterministic(t *testing.T) {
	a := HashSessionToken("token-one")
	b := HashSessionToken("token-one")
	c := HashSessionToken("token-two")

	if a != b {
		t.Fatal("same token must hash identically")
	}
	if a == c {
		t.Fatal("different tokens must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == "token-one" {
		t.Fatal("hash must not equal the token")
	}
}
