// Package otp issues and verifies one-time sign-in codes for the local identity provider.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const otpDigits = 6

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a 6-digit numeric code drawn uniformly from crypto/rand.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// HashOTP returns the hex SHA-256 of code bound to the challenge key.
func HashOTP(key, code string) string {
	h := sha256.Sum256([]byte(key + "\x00" + code))
	return hex.EncodeToString(h[:])
}

// OTPEqual reports in constant time whether code hashes to storedHash under key.
func OTPEqual(key, code, storedHash string) bool {
	if code == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashOTP(key, code)), []byte(storedHash)) == 1
}
