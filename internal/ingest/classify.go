// Package ingest turns arbitrary upstream webhook payloads into canonical
// chatlog records: normalize the envelope, classify out non-content events,
// extract canonical fields, and write both stores.
package ingest

import "strings"

// noiseMarkers match event kinds that carry no chat content. Matching is a
// case-insensitive substring check after separator normalization, so
// "MessageStatusCallback", "message_status_callback" and "StatusCallback"
// all collapse onto the same marker.
var noiseMarkers = []string{
	"status",
	"presence",
	"typing",
	"ack",
	"acknowledg",
	"read",
	"delivery",
}

// receivedCallbackType is the one callback-suffixed type that does carry chat
// content; it canonicalizes to kind "chat".
const receivedCallbackType = "ReceivedCallback"

// IsNoise reports whether the declared event type identifies a
// delivery/read/presence/typing event that must never create or mutate a
// conversation or message.
func IsNoise(rawType string) bool {
	if rawType == receivedCallbackType {
		return false
	}
	t := strings.ToLower(rawType)
	t = strings.ReplaceAll(t, "-", "")
	t = strings.ReplaceAll(t, "_", "")
	// The "Callback" suffix names the delivery mechanism, not the event kind;
	// stripping it keeps the "ack" marker from matching inside "callback".
	t = strings.TrimSuffix(t, "callback")
	for _, marker := range noiseMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}
