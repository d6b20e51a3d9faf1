package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"alice@example.com", true},
		{"a@b.com", true},
		{"first.last+tag@sub.example.co", true},
		{"under_score%x@host-name.io", true},
		{"", false},
		{"alice", false},
		{"alice@example", false},
		{"alice@example.c", false},
		{"@example.com", false},
		{"alice@@example.com", false},
		{"alice smith@example.com", false},
		{"alice@example.com ", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.addr))
		})
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("alice@example.com"))
	assert.Equal(t, "", Domain("alice"))
}
