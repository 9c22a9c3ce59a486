package otp

import "testing"

func TestGenerateOTP_ReturnsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code length = %d, want 6 (%q)", len(code), code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code contains non-digit: %q", code)
			}
		}
	}
}

func TestHashOTP_BoundToKey(t *testing.T) {
	a := HashOTP("sms:+447700900000", "123456")
	b := HashOTP("sms:+447700900001", "123456")
	if a == b {
		t.Error("same code under different keys should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(a))
	}
	if a != HashOTP("sms:+447700900000", "123456") {
		t.Error("HashOTP not consistent")
	}
}

func TestOTPEqual(t *testing.T) {
	key := "email:a@b.com"
	stored := HashOTP(key, "123456")

	if !OTPEqual(key, "123456", stored) {
		t.Error("OTPEqual should match correct code")
	}
	if OTPEqual(key, "654321", stored) {
		t.Error("OTPEqual should reject incorrect code")
	}
	if OTPEqual("email:c@d.com", "123456", stored) {
		t.Error("OTPEqual should reject code for another key")
	}
	if OTPEqual(key, "123456", "a"+stored) {
		t.Error("OTPEqual should reject hash with different length")
	}
	if OTPEqual(key, "", stored) || OTPEqual(key, "123456", "") {
		t.Error("OTPEqual should not match empty inputs")
	}
}
