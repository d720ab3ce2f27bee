package notify

import (
	"regexp"
	"strings"

	"github.com/hearthplan/hearthplan/internal/models"
)

// Fixed response vocabulary. A reply containing words from both sets,
// or neither, classifies as unclear and waits for human follow-up.
var (
	approveWords = wordSet("yes", "y", "yep", "yeah", "approve", "approved", "ok", "okay", "sure", "book", "register", "go")
	rejectWords  = wordSet("no", "n", "nope", "reject", "rejected", "pass", "skip", "cancel", "dont", "don't")

	responseWordRe = regexp.MustCompile(`[\w']+`)
)

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// ClassifyResponse parses an inbound reply into approved, rejected, or
// unclear using the fixed vocabulary.
func ClassifyResponse(raw string) models.ResponseClassification {
	hasApprove := false
	hasReject := false

	for _, word := range responseWordRe.FindAllString(strings.ToLower(raw), -1) {
		if approveWords[word] {
			hasApprove = true
		}
		if rejectWords[word] {
			hasReject = true
		}
	}

	switch {
	case hasApprove && !hasReject:
		return models.ResponseApproved
	case hasReject && !hasApprove:
		return models.ResponseRejected
	default:
		return models.ResponseUnclear
	}
}
