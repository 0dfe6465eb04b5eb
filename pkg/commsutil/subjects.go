package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectBridge       = "cap.cwi.bridge.v1"
	SubjectBridgeEvents = "bridge.events"
)

// BuildEventSubject builds the per-kind subject under an event base subject.
func BuildEventSubject(base, kind string) string {
	return fmt.Sprintf("%s.%s", base, sanitizeToken(kind))
}

// BuildBridgeSubject builds a request subject for a named bridge instance.
func BuildBridgeSubject(service string, major int) string {
	return fmt.Sprintf("cap.cwi.%s.v%d", sanitizeToken(service), major)
}

func sanitizeToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
