package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampSessions(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	end := func(d time.Duration) *time.Time {
		t := base.Add(d)
		return &t
	}
	since := base

	tests := []struct {
		name      string
		session   Session
		kept      bool
		wantStart time.Time
	}{
		{"ended before window", Session{Start: base.Add(-2 * time.Hour), End: end(-time.Hour)}, false, time.Time{}},
		{"ended exactly at window start", Session{Start: base.Add(-time.Hour), End: end(0)}, false, time.Time{}},
		{"straddles window start", Session{Start: base.Add(-time.Hour), End: end(time.Hour)}, true, base},
		{"open from before window", Session{Start: base.Add(-time.Hour)}, true, base},
		{"inside window", Session{Start: base.Add(time.Hour), End: end(2 * time.Hour)}, true, base.Add(time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampSessions([]Session{tt.session}, &since)
			if !tt.kept {
				assert.Empty(t, got)
				return
			}
			if assert.Len(t, got, 1) {
				assert.True(t, got[0].Start.Equal(tt.wantStart), "start %s", got[0].Start)
			}
		})
	}
}

func TestClampSessionsWithoutSince(t *testing.T) {
	sessions := []Session{{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}
	assert.Equal(t, sessions, ClampSessions(sessions, nil))
}
