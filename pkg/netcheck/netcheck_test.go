package netcheck

import (
	"context"
	"testing"
	"time"
)

func TestOnlineNoProbeAddr(t *testing.T) {
	c := New("", time.Second)
	if c.Online(context.Background()) {
		t.Error("Online() without a probe address should be false")
	}
}

func TestOnlineUnreachable(t *testing.T) {
	// Reserved TEST-NET-1 address. The dial must fail fast.
	c := New("192.0.2.1:9", 200*time.Millisecond)

	start := time.Now()
	if c.Online(context.Background()) {
		t.Error("Online() against unreachable address should be false")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Online() took %v, expected bounded timeout", elapsed)
	}
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"", ""},
		{"https://api.example.com", "api.example.com:443"},
		{"http://api.example.com", "api.example.com:80"},
		{"https://api.example.com:8443", "api.example.com:8443"},
		{"http://10.0.0.5:8080/v1", "10.0.0.5:8080"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := ProbeAddr(tt.url); got != tt.want {
			t.Errorf("ProbeAddr(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
