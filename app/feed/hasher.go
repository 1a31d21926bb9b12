package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const fingerprintLength = 32

// Fingerprint derives the dedup key for an article from its title and the
// host of its link. Links that do not parse to an absolute URL fall back to
// the title alone.
func Fingerprint(title, link string) string {
	normalized := NormalizeTitle(title)

	data := normalized
	if host := linkHost(link); host != "" {
		data = normalized + "|" + host
	}

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:fingerprintLength]
}

// NormalizeTitle lowercases the title, trims it and collapses whitespace runs.
func NormalizeTitle(title string) string {
	title = norm.NFC.String(title)
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

func linkHost(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
