package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"strings"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/core/domain"
)

// friendCodeEncoding drops padding; 5 digest bytes encode to 8 characters.
var friendCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// FriendCoder derives short, deterministic, non-secret aliases for account
// ids. Codes are never stored; resolution re-derives them on demand.
type FriendCoder struct {
	key []byte
}

// NewFriendCoder constructs a coder with the supplied derivation key. An
// empty key still yields stable codes, but they change if a key is later set.
func NewFriendCoder(key string) *FriendCoder {
	return &FriendCoder{key: []byte(key)}
}

// Derive returns the friend code for an account id, formatted XXXX-XXXX.
// Case differences in the account id never change the code.
func (f *FriendCoder) Derive(accountID string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(domain.CanonicalAccountID(accountID)))
	digest := mac.Sum(nil)

	encoded := friendCodeEncoding.EncodeToString(digest[:5])
	return encoded[:4] + "-" + encoded[4:]
}

// LooksLikeCode reports whether a query has the friend-code shape, so
// resolution can try codes before raw ids and usernames.
func LooksLikeCode(query string) bool {
	query = strings.ToUpper(strings.TrimSpace(query))
	if len(query) != 9 || query[4] != '-' {
		return false
	}
	for i, c := range query {
		if i == 4 {
			continue
		}
		if !strings.ContainsRune(friendCodeAlphabet, c) {
			return false
		}
	}
	return true
}

const friendCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
