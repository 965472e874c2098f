package models

import "time"

// SessionStatus represents the current state of a browser session
type SessionStatus string

const (
	StatusRunning   SessionStatus = "RUNNING"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusError     SessionStatus = "ERROR"
	StatusTimedOut  SessionStatus = "TIMED_OUT"
)

// Session represents a browser running against a copy of the base context
type Session struct {
	ID               string        `json:"id"`
	Status           SessionStatus `json:"status"`
	Backend          string        `json:"backend"`
	ContextPath      string        `json:"contextPath"`
	URL              string        `json:"url,omitempty"`
	Title            string        `json:"title,omitempty"`
	NavigationMillis int64         `json:"navigationMillis"`
	SizeBytes        int64         `json:"sizeBytes"`
	StartedAt        time.Time     `json:"startedAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	Timeout          int           `json:"timeout"`
	ConnectURL       string        `json:"connectUrl,omitempty"`
	ScreenshotPath   string        `json:"screenshotPath,omitempty"`
}

// CreateSessionRequest is the payload for creating a new session
type CreateSessionRequest struct {
	URL     string `json:"url,omitempty"`
	Backend string `json:"backend,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

// NavigateRequest is the payload for navigating a live session
type NavigateRequest struct {
	URL string `json:"url"`
}

// CacheStats counts the page's resources and how many were served from the HTTP cache
type CacheStats struct {
	Resources int `json:"resources"`
	FromCache int `json:"fromCache"`
}
