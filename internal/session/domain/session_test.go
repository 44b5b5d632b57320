package domain

import (
	"testing"
	"time"
)

func TestSession_ActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 30 * 24 * time.Hour
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"fresh", Session{Active: true, LastActivityAt: now}, true},
		{"idle exactly ttl", Session{Active: true, LastActivityAt: now.Add(-ttl)}, true},
		{"idle past ttl", Session{Active: true, LastActivityAt: now.Add(-ttl - time.Second)}, false},
		{"inactive", Session{Active: false, LastActivityAt: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.ActiveAt(now, ttl); got != tt.want {
				t.Errorf("ActiveAt = %v, want %v", got, tt.want)
			}
		})
	}
}
