package models

import "time"

// ContextKind distinguishes the shared base profile from disposable copies
type ContextKind string

const (
	KindBase    ContextKind = "base"
	KindSession ContextKind = "session"
)

// BaseContextID is the ID reported for the shared base profile
const BaseContextID = "base"

// Context represents an on-disk browser profile directory
type Context struct {
	ID         string      `json:"id"`
	Kind       ContextKind `json:"kind"`
	Path       string      `json:"path"`
	SizeBytes  int64       `json:"sizeBytes"`
	Size       string      `json:"size"`
	ModifiedAt time.Time   `json:"modifiedAt"`
}

// WarmBaseRequest is the payload for warming the base context
type WarmBaseRequest struct {
	URL       string `json:"url,omitempty"`
	Backend   string `json:"backend,omitempty"`
	Preflight bool   `json:"preflight,omitempty"`
}

// WarmResult describes a finished cache-warming run.
// AssetDetected is advisory only; a false value does not mean the cache is cold.
type WarmResult struct {
	Path          string `json:"path"`
	URL           string `json:"url"`
	SizeBytes     int64  `json:"sizeBytes"`
	Size          string `json:"size"`
	AssetDetected bool   `json:"assetDetected"`
	AssetURL      string `json:"assetUrl,omitempty"`
	ElapsedMillis int64  `json:"elapsedMillis"`
}
