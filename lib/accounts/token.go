// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"cmp"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// Defaults applied to the active token file when a saved token leaves
// the field empty.
const (
	DefaultAuthMethod = "IdC"
	DefaultProvider   = "BuilderId"
	DefaultRegion     = "us-east-1"
)

// TokenData is one saved credential as written by the registration
// worker. Fields prefixed with an underscore in JSON are private to
// the saved file and never copied into the active token.
type TokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
	Provider     string `json:"provider,omitempty"`
	AuthMethod   string `json:"authMethod,omitempty"`
	Region       string `json:"region,omitempty"`
	ClientIDHash string `json:"clientIdHash,omitempty"`
	AccountName  string `json:"accountName,omitempty"`
	Email        string `json:"email,omitempty"`
	ClientID     string `json:"_clientId,omitempty"`
	ClientSecret string `json:"_clientSecret,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// activeToken is the exact shape Kiro expects in its token file.
type activeToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
	ClientIDHash string `json:"clientIdHash"`
	AuthMethod   string `json:"authMethod"`
	Provider     string `json:"provider"`
	Region       string `json:"region"`
}

// ParseToken decodes a token file. Comments and trailing commas are
// tolerated.
func ParseToken(data []byte) (TokenData, error) {
	var token TokenData
	if err := json.Unmarshal(jsonc.ToJSON(data), &token); err != nil {
		return TokenData{}, fmt.Errorf("parsing token: %w", err)
	}
	return token, nil
}

// Expiry returns the parsed expiresAt. ok is false when it is missing
// or unparsable.
func (t TokenData) Expiry() (expiresAt time.Time, ok bool) {
	if t.ExpiresAt == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, t.ExpiresAt)
	if err != nil {
		// Some writers store epoch milliseconds.
		millis, numErr := strconv.ParseInt(t.ExpiresAt, 10, 64)
		if numErr != nil {
			return time.Time{}, false
		}
		parsed = time.UnixMilli(millis)
	}
	return parsed, true
}

// Expired reports whether the token is unusable at now. A token with
// no known expiry counts as expired.
func (t TokenData) Expired(now time.Time) bool {
	expiresAt, ok := t.Expiry()
	return !ok || !expiresAt.After(now)
}

// ExpiresInText renders the time left: "?" when unknown, "Exp" once
// past, otherwise whole minutes, hours, or days ("42m", "5h", "3d").
func (t TokenData) ExpiresInText(now time.Time) string {
	expiresAt, ok := t.Expiry()
	if !ok {
		return "?"
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return "Exp"
	}
	minutes := int(remaining / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}

// Fingerprint identifies the token by its refresh token without
// exposing it. Empty when the token has no refresh token.
func (t TokenData) Fingerprint() string {
	if t.RefreshToken == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(t.RefreshToken))
	return hex.EncodeToString(sum[:16])
}

// clientIDHash returns the stored hash, else the sha1 hex of the
// client ID, else "".
func (t TokenData) clientIDHash() string {
	if t.ClientIDHash != "" {
		return t.ClientIDHash
	}
	if t.ClientID == "" {
		return ""
	}
	sum := sha1.Sum([]byte(t.ClientID))
	return hex.EncodeToString(sum[:])
}

func (t TokenData) active() activeToken {
	return activeToken{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		ClientIDHash: t.clientIDHash(),
		AuthMethod:   cmp.Or(t.AuthMethod, DefaultAuthMethod),
		Provider:     cmp.Or(t.Provider, DefaultProvider),
		Region:       cmp.Or(t.Region, DefaultRegion),
	}
}
