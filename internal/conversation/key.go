// Package conversation derives the canonical key of a two-party conversation.
// The key is the partition key of the messages table and the topic suffix of
// the realtime channel, so every component must go through Key.
package conversation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/linked-app/linked/backend/internal/apperr"
)

// Separator joins the two normalized identifiers of a key.
// Wallet addresses are hex strings and never contain it.
const Separator = ":"

// Normalize returns the canonical form of a participant identifier.
func Normalize(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperr.Validation("normalize identifier", apperr.ErrEmptyIdentifier)
	}
	if strings.Contains(id, Separator) || strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return "", apperr.Validation("normalize identifier",
			fmt.Errorf("%w: %q", apperr.ErrInvalidIdentifier, id))
	}
	return strings.ToLower(id), nil
}

// Key returns the order-independent key of the pair {a, b}.
func Key(a, b string) (string, error) {
	na, err := Normalize(a)
	if err != nil {
		return "", err
	}
	nb, err := Normalize(b)
	if err != nil {
		return "", err
	}
	if nb < na {
		na, nb = nb, na
	}
	return na + Separator + nb, nil
}

// Participants splits a key produced by Key back into its sorted pair.
func Participants(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, Separator)
	if !ok || a == "" || b == "" || strings.Contains(b, Separator) {
		return "", "", apperr.Validation("split conversation key",
			fmt.Errorf("%w: %q", apperr.ErrInvalidIdentifier, key))
	}
	return a, b, nil
}
