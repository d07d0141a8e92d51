// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"testing"
	"time"
)

func TestExpiresInText(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt string
		want      string
	}{
		{"missing", "", "?"},
		{"unparsable", "soon", "?"},
		{"past", now.Add(-time.Second).Format(time.RFC3339), "Exp"},
		{"exactly now", now.Format(time.RFC3339), "Exp"},
		{"seconds", now.Add(30 * time.Second).Format(time.RFC3339), "0m"},
		{"minutes", now.Add(59*time.Minute + 59*time.Second).Format(time.RFC3339), "59m"},
		{"hours", now.Add(23*time.Hour + 59*time.Minute).Format(time.RFC3339), "23h"},
		{"days", now.Add(50 * time.Hour).Format(time.RFC3339), "2d"},
		{"fractional seconds", "2026-03-10T12:45:00.000Z", "45m"},
		{"epoch millis", "1773147600000", "1h"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			token := TokenData{ExpiresAt: test.expiresAt}
			if got := token.ExpiresInText(now); got != test.want {
				t.Errorf("ExpiresInText(%q) = %q, want %q", test.expiresAt, got, test.want)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	if !(TokenData{}).Expired(now) {
		t.Error("token without expiry not expired")
	}
	if !(TokenData{ExpiresAt: now.Format(time.RFC3339)}).Expired(now) {
		t.Error("token expiring now not expired")
	}
	if (TokenData{ExpiresAt: now.Add(time.Minute).Format(time.RFC3339)}).Expired(now) {
		t.Error("future token reported expired")
	}
}

func TestFingerprint(t *testing.T) {
	if got := (TokenData{}).Fingerprint(); got != "" {
		t.Errorf("Fingerprint without refresh token = %q", got)
	}
	first := TokenData{RefreshToken: "r1"}.Fingerprint()
	if len(first) != 32 {
		t.Errorf("Fingerprint length = %d, want 32 hex chars", len(first))
	}
	if first == (TokenData{RefreshToken: "r2"}).Fingerprint() {
		t.Error("different refresh tokens share a fingerprint")
	}
	if first != (TokenData{RefreshToken: "r1", AccessToken: "other"}).Fingerprint() {
		t.Error("fingerprint depends on more than the refresh token")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken([]byte("[1,2")); err == nil {
		t.Error("expected error")
	}
}
