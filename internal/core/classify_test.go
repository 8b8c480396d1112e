package core

import "testing"

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"connection to print agent failed: dial tcp: refused", true},
		{"transport timeout: context deadline exceeded", true},
		{"printer is Offline", true},
		{"print agent unavailable: http 503", true},
		{"device busy", true},
		{"network unreachable", true},
		{"printer front-desk does not support format pdf", false},
		{"agent rejected job: malformed zpl", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsTransientError(tt.msg); got != tt.want {
			t.Fatalf("IsTransientError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
