package model

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupID identifies one independent presence space (a guild in the chat layer)
type GroupID int64

// PlayerID identifies a tracked player row
type PlayerID int64

// SessionID identifies one online interval
type SessionID int64

func (g GroupID) String() string {
	return strconv.FormatInt(int64(g), 10)
}

func (p PlayerID) String() string {
	return strconv.FormatInt(int64(p), 10)
}

func (s SessionID) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// ParseGroupID parses a decimal group identifier
func ParseGroupID(s string) (GroupID, error) {
	id, err := parsePositive(s)
	if err != nil {
		return 0, fmt.Errorf("group id %q: %w", s, ErrInvalidID)
	}
	return GroupID(id), nil
}

// ParsePlayerID parses a decimal player identifier
func ParsePlayerID(s string) (PlayerID, error) {
	id, err := parsePositive(s)
	if err != nil {
		return 0, fmt.Errorf("player id %q: %w", s, ErrInvalidID)
	}
	return PlayerID(id), nil
}

func parsePositive(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return id, nil
}
