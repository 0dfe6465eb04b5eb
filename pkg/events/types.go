// Package events defines bridge event types and publisher interfaces.
package events

import "time"

// Event kinds.
const (
	KindAuthenticated     = "authenticated"
	KindVisibilityChanged = "visibility_changed"
	KindPageLoaded        = "page_loaded"
)

// BridgeEvent is emitted when the bridge's session or presentation state changes.
type BridgeEvent struct {
	Kind          string `json:"kind"`
	Originator    string `json:"originator"`
	Authenticated *bool  `json:"authenticated,omitempty"`
	Visible       *bool  `json:"visible,omitempty"`
	Source        string `json:"source,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func boolPtr(b bool) *bool { return &b }
