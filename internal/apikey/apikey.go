// Package apikey handles gateway API keys of the form sk-t0-<public_id>-<long_key>.
package apikey

import (
	"errors"
	"strings"
)

const (
	Prefix = "sk-t0-"
	Format = Prefix + "<public_id>-<long_key>"

	maskLen = 15
)

var ErrMalformedKey = errors.New("api key does not match " + Format)

type Key struct {
	PublicID string
	Secret   string
}

func Parse(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, Prefix)
	if !ok {
		return Key{}, ErrMalformedKey
	}
	publicID, secret, ok := strings.Cut(rest, "-")
	if !ok || publicID == "" || secret == "" {
		return Key{}, ErrMalformedKey
	}
	return Key{PublicID: publicID, Secret: secret}, nil
}

// Mask keeps the first 15 characters of raw.
func Mask(raw string) string {
	if len(raw) > maskLen {
		raw = raw[:maskLen]
	}
	return raw + "..."
}
