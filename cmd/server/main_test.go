package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"Wildcard", []string{"*"}, "https://evil.example", true},
		{"Listed", []string{"https://app.example"}, "https://APP.example", true},
		{"NotListed", []string{"https://app.example"}, "https://evil.example", false},
		{"NoOriginHeader", []string{"https://app.example"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, allowOrigin(tt.origins)(r))
		})
	}
}
