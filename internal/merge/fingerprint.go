package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hearthplan/hearthplan/internal/models"
)

// ErrUnfingerprintable is returned for candidates missing a title or
// date. Such candidates are dropped before the merge step, not retried.
var ErrUnfingerprintable = errors.New("candidate missing title or date")

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[^\w\s]`)
	wordRe        = regexp.MustCompile(`\w+`)
)

// Fingerprint computes the normalized identity key for a candidate:
// folded title, date bucket (not exact timestamp, to absorb minor source
// skew), and a coarse venue token. Equal fingerprints always merge.
func Fingerprint(c models.CandidateEvent) (string, error) {
	if !c.Valid() {
		return "", ErrUnfingerprintable
	}

	data := fmt.Sprintf("%s|%s|%s",
		NormalizeTitle(c.Title),
		c.StartTime.UTC().Format("2006-01-02"),
		VenueToken(c.Location),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:]), nil
}

// NormalizeTitle standardizes a title for comparison: lower-cased,
// punctuation stripped, whitespace collapsed.
func NormalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	normalized = punctuationRe.ReplaceAllString(normalized, " ")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// VenueToken reduces a location to a coarse identifier: the first
// substantive word of the address. Venues that rename slightly between
// sources ("Main St Library" vs "Main Street Library") still bucket
// together on the leading token.
func VenueToken(loc models.Location) string {
	words := wordRe.FindAllString(strings.ToLower(loc.Address), -1)
	for _, w := range words {
		if isVenueStopword(w) {
			continue
		}
		return w
	}
	return "unknown"
}

func isVenueStopword(w string) bool {
	switch w {
	case "the", "a", "an", "at", "of":
		return true
	}
	// Leading street numbers carry no venue identity.
	if w[0] >= '0' && w[0] <= '9' {
		return true
	}
	return false
}

// tokenize splits a normalized string into words.
func tokenize(s string) []string {
	return wordRe.FindAllString(s, -1)
}
