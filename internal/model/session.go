package model

import "time"

// Session is one contiguous online interval. A nil End means the session is open.
type Session struct {
	ID       SessionID  `json:"id"`
	PlayerID PlayerID   `json:"player_id"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
}

// IsOpen reports whether the session has not been closed yet
func (s Session) IsOpen() bool {
	return s.End == nil
}

// EndOr returns the end timestamp, or now for an open session
func (s Session) EndOr(now time.Time) time.Time {
	if s.End == nil {
		return now
	}
	return *s.End
}

// Duration returns the session length, counting open sessions up to now
func (s Session) Duration(now time.Time) time.Duration {
	d := s.EndOr(now).Sub(s.Start)
	if d < 0 {
		return 0
	}
	return d
}

// ClampTo moves a start earlier than since up to since. The second return
// is false when the session ended at or before since and therefore has
// nothing left inside the window.
func (s Session) ClampTo(since time.Time) (Session, bool) {
	if s.End != nil && !s.End.After(since) {
		return s, false
	}
	if s.Start.Before(since) {
		s.Start = since
	}
	return s, true
}

// ClampSessions applies ClampTo to each session, dropping those entirely
// before since. A nil since returns the input unchanged.
func ClampSessions(sessions []Session, since *time.Time) []Session {
	if since == nil {
		return sessions
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if c, ok := s.ClampTo(*since); ok {
			out = append(out, c)
		}
	}
	return out
}
