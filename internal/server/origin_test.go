package server

import (
	"net/http/httptest"
	"testing"

	"github.com/Tyrowin/linechat/internal/logging"
)

func TestOriginPolicy(t *testing.T) {
	log := logging.Discard().WithFields(nil)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"listed origin", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case and trailing path", []string{"http://localhost:8080"}, "HTTP://LocalHost:8080/chat", true},
		{"unlisted origin", []string{"http://localhost:8080"}, "http://evil.example.com", false},
		{"missing origin", []string{"http://localhost:8080"}, "", false},
		{"malformed origin", []string{"*"}, "not a url", false},
		{"wildcard", []string{"*"}, "https://anywhere.example.com", true},
		{"nothing configured", nil, "http://localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOriginPolicy(tt.allowed, log)
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := p.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
