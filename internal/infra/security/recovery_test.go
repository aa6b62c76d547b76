package security

import (
	"strings"
	"testing"
)

func useFastArgon2(t *testing.T) {
	t.Helper()

	previous := CurrentArgon2Config()
	if err := ConfigureArgon2(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	}); err != nil {
		t.Fatalf("ConfigureArgon2 returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = ConfigureArgon2(previous)
	})
}

func TestGenerateRecoveryCodeFormat(t *testing.T) {
	code, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatalf("GenerateRecoveryCode returned error: %v", err)
	}

	groups := strings.Split(code, "-")
	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d (%q)", len(groups), code)
	}
	for _, group := range groups {
		if len(group) != 5 {
			t.Errorf("group %q has length %d, want 5", group, len(group))
		}
		for _, c := range group {
			if !strings.ContainsRune(recoveryCodeAlphabet, c) {
				t.Errorf("group %q contains %q outside the alphabet", group, c)
			}
		}
	}
}

func TestRecoveryCodeRoundTrip(t *testing.T) {
	useFastArgon2(t)

	code, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatalf("GenerateRecoveryCode returned error: %v", err)
	}

	hash, err := HashRecoveryCode(code)
	if err != nil {
		t.Fatalf("HashRecoveryCode returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %q", hash)
	}

	ok, err := VerifyRecoveryCode(code, hash)
	if err != nil {
		t.Fatalf("VerifyRecoveryCode returned error: %v", err)
	}
	if !ok {
		t.Fatal("correct code did not verify")
	}

	// Re-typed codes survive case and separator differences.
	retyped := strings.ToLower(strings.ReplaceAll(code, "-", ""))
	ok, err = VerifyRecoveryCode(retyped, hash)
	if err != nil {
		t.Fatalf("VerifyRecoveryCode returned error: %v", err)
	}
	if !ok {
		t.Fatal("normalized code did not verify")
	}

	ok, err = VerifyRecoveryCode("WRONG-WRONG-WRONG-WRONG", hash)
	if err != nil {
		t.Fatalf("VerifyRecoveryCode returned error: %v", err)
	}
	if ok {
		t.Fatal("wrong code verified")
	}
}

func TestVerifyRecoveryCodeRejectsMalformedHash(t *testing.T) {
	useFastArgon2(t)

	cases := []string{
		"not-a-hash",
		"argon2id$v=19$m=8192,t=1$short",
		"bcrypt$v=19$m=8192,t=1,p=1$AAAA$BBBB",
	}
	for _, encoded := range cases {
		if _, err := VerifyRecoveryCode("AAAAA-AAAAA-AAAAA-AAAAA", encoded); err == nil {
			t.Errorf("expected error for %q", encoded)
		}
	}

	if ok, err := VerifyRecoveryCode("", "whatever"); err != nil || ok {
		t.Errorf("empty code: ok=%v err=%v, want false, nil", ok, err)
	}
}

func TestConfigureArgon2Validation(t *testing.T) {
	cases := []Argon2Config{
		{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 0, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 0, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 4, KeyLength: 16},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 8},
	}
	for i, cfg := range cases {
		if err := ConfigureArgon2(cfg); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
