package model

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// NormalizeCity folds a city name into its storage and cache key form:
// NFC-composed, lowercased, surrounding whitespace removed.
func NormalizeCity(city string) string {
	return strings.TrimSpace(lower.String(norm.NFC.String(city)))
}

// NormalizeURL reduces a URL to a comparable form for duplicate detection.
// "https://www.Acme.com/suits/?ref=x#top" becomes "acme.com/suits".
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" {
		return ""
	}
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}

// ExtractDomain returns the host part of a normalized URL
// ("hmcole.com/boston-ma" becomes "hmcole.com").
func ExtractDomain(raw string) string {
	n := NormalizeURL(raw)
	if i := strings.Index(n, "/"); i >= 0 {
		return n[:i]
	}
	return n
}

// ProspectID derives the stable prospect identifier for a website in a city.
func ProspectID(websiteURL, city string) string {
	sum := md5.Sum([]byte(NormalizeURL(websiteURL) + "_" + NormalizeCity(city)))
	return hex.EncodeToString(sum[:])[:16]
}
