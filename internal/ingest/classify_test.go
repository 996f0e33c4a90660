package ingest

import "testing"

func TestIsNoise(t *testing.T) {
	tests := []struct {
		rawType string
		noise   bool
	}{
		{"MessageStatusCallback", true},
		{"message_status_callback", true},
		{"StatusCallback", true},
		{"PresenceChatCallback", true},
		{"presence", true},
		{"TypingCallback", true},
		{"typing", true},
		{"ack", true},
		{"Acknowledgement", true},
		{"ReadReceipt", true},
		{"read-receipt", true},
		{"DeliveryReceipt", true},
		{"DeliveryCallback", true},

		{"ReceivedCallback", false},
		{"SentCallback", false},
		{"message", false},
		{"chat", false},
		{"image", false},
		{"document", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsNoise(tt.rawType); got != tt.noise {
			t.Errorf("IsNoise(%q) = %v, want %v", tt.rawType, got, tt.noise)
		}
	}
}
