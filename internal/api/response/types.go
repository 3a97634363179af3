package response

import (
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/prediction"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/reconcile"
)

// Prediction outcomes
const (
	PredictionOK           = "ok"
	PredictionInsufficient = "insufficient"
)

// Health is the liveness response
type Health struct {
	Status string `json:"status"`
}

// GroupStatus summarizes one group
type GroupStatus struct {
	Group      model.GroupID `json:"group"`
	Online     int           `json:"online"`
	Players    int           `json:"players"`
	PollTarget string        `json:"poll_target,omitempty"`
	Polling    bool          `json:"polling"`
	WipeEpoch  *time.Time    `json:"wipe_epoch,omitempty"`
}

// Status lists every configured group
type Status struct {
	Time   time.Time     `json:"time"`
	Groups []GroupStatus `json:"groups"`
}

// Session is an authenticated admin session
type Session struct {
	Token     string    `json:"session_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionFromAuth converts an auth.Session
func SessionFromAuth(s *auth.Session) Session {
	return Session{Token: s.Token, ExpiresAt: s.ExpiresAt}
}

// Players lists the players of a group
type Players struct {
	Group   model.GroupID   `json:"group"`
	Players []*model.Player `json:"players"`
}

// Sessions lists one player's sessions
type Sessions struct {
	Player   *model.Player   `json:"player"`
	Since    *time.Time      `json:"since,omitempty"`
	Sessions []model.Session `json:"sessions"`
}

// Prediction wraps a prediction result. Prediction is nil when the player
// has too few sessions.
type Prediction struct {
	Status     string                 `json:"status"`
	Player     *model.Player          `json:"player,omitempty"`
	Prediction *prediction.Prediction `json:"prediction,omitempty"`
}

// Reconcile is the result of one on-demand reconciliation cycle
type Reconcile struct {
	Report      *reconcile.CycleReport `json:"report"`
	Corrections int                    `json:"corrections"`
}

// Duplicates lists legacy-prefixed players
type Duplicates struct {
	Duplicates []model.LegacyDuplicate `json:"duplicates"`
}

// Wipe reports the group's analytics window
type Wipe struct {
	Group     model.GroupID `json:"group"`
	WipeEpoch *time.Time    `json:"wipe_epoch"`
}

// Devices lists the paired devices of a group
type Devices struct {
	Devices []*model.Device `json:"devices"`
}

// Listings wraps the market listings stored from one broadcast
type Listings struct {
	Listings []*model.MarketListing `json:"listings"`
}
