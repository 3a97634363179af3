package model

import "time"

// Merge describes an identity merge ready to be applied by storage.
// Target carries its post-merge online state and last-seen.
type Merge struct {
	Group  GroupID
	Source Player
	Target Player
	// CloseSourceSessionAt closes the source's open session before it moves
	CloseSourceSessionAt *time.Time
}

// MergeReport counts what a merge relocated
type MergeReport struct {
	Source           PlayerID `json:"source"`
	Target           PlayerID `json:"target"`
	SessionsMoved    int      `json:"sessions_moved"`
	RecordsRewritten int      `json:"records_rewritten"`
}

// LegacyDuplicate is a player whose key still carries the old "player " prefix.
// Target is nil when no player with the stripped name exists.
type LegacyDuplicate struct {
	Source        Player  `json:"source"`
	Target        *Player `json:"target,omitempty"`
	CandidateName string  `json:"candidate_name"`
}
