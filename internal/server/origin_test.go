package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"http://example.com/path?q=1", "http://example.com", true},
		{"example.com", "", false},
		{"://bad", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{" http://LOCALHOST:8080 ", "", "not-an-origin"}, zaptest.NewLogger(t))
	assert.Len(t, p.allowed, 1)

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, p.checkOrigin(req), "missing origin is refused")

	req.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, p.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:9999")
	assert.False(t, p.checkOrigin(req))
}

func TestOriginPolicyWildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, zaptest.NewLogger(t))

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, p.checkOrigin(req))
	req.Header.Set("Origin", "http://anything.example")
	assert.True(t, p.checkOrigin(req))
}
