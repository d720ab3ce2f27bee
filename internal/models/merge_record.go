package models

import (
	"time"
)

// MergeType distinguishes fingerprint-identical merges from
// similarity-threshold merges.
type MergeType string

const (
	MergeTypeExact MergeType = "exact"
	MergeTypeFuzzy MergeType = "fuzzy"
)

// MergeRecord is a write-once audit entry for a single merge. The merged
// candidate's data is snapshotted so a false-positive merge can be
// manually unwound later.
type MergeRecord struct {
	ID                 string         `json:"id"`
	PrimaryFingerprint string         `json:"primary_fingerprint"`
	MergedFingerprint  string         `json:"merged_fingerprint"`
	MergedSnapshot     CandidateEvent `json:"merged_snapshot"`
	Similarity         float64        `json:"similarity"`
	MergeType          MergeType      `json:"merge_type"`
	CreatedAt          time.Time      `json:"created_at"`
}
