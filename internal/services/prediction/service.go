// Package prediction estimates when an offline player returns from the
// time of day their past sessions started.
package prediction

import (
	"context"
	"log/slog"
	"time"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/clock"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// SessionReader is the slice of the presence service prediction reads from
type SessionReader interface {
	GetPlayer(ctx context.Context, group model.GroupID, id model.PlayerID) (*model.Player, error)
	QuerySessions(ctx context.Context, playerID model.PlayerID, since *time.Time) ([]model.Session, error)
}

// EpochReader supplies the analytics lower bound of a group
type EpochReader interface {
	GetWipeEpoch(ctx context.Context, group model.GroupID) (*time.Time, error)
}

// Prediction is the expected next online time of a player
type Prediction struct {
	PlayerID      model.PlayerID `json:"player_id"`
	Player        string         `json:"player"`
	Online        bool           `json:"online"`
	At            time.Time      `json:"at"`
	Hour          int            `json:"hour"`
	Minute        int            `json:"minute"`
	UntilSeconds  int64          `json:"until_seconds"`
	Concentration float64        `json:"concentration"`
	Confidence    Confidence     `json:"confidence"`
	Samples       int            `json:"samples"`
	// Overdue is set when the predicted instant is already behind now
	Overdue bool `json:"overdue"`
}

// Service produces return-time predictions
type Service struct {
	sessions SessionReader
	epochs   EpochReader
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a new prediction service
func New(sessions SessionReader, epochs EpochReader, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		epochs:   epochs,
		clock:    clock,
		logger:   logger.With(slog.String("component", "prediction")),
	}
}

// PredictReturn predicts the next time the player comes online.
// Fewer than MinSamples session starts yields model.ErrInsufficientData.
func (s *Service) PredictReturn(ctx context.Context, group model.GroupID, playerID model.PlayerID) (*Prediction, error) {
	player, err := s.sessions.GetPlayer(ctx, group, playerID)
	if err != nil {
		return nil, err
	}
	epoch, err := s.epochs.GetWipeEpoch(ctx, group)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.QuerySessions(ctx, playerID, epoch)
	if err != nil {
		return nil, err
	}

	if len(sessions) > MaxSamples {
		sessions = sessions[len(sessions)-MaxSamples:]
	}
	if len(sessions) < MinSamples {
		return nil, model.ErrInsufficientData
	}

	starts := make([]time.Time, len(sessions))
	for i, sess := range sessions {
		starts[i] = sess.Start
	}

	now := s.clock.Now()
	p := predict(starts, now)
	p.PlayerID = player.ID
	p.Player = player.Name
	p.Online = player.Online

	s.logger.Debug("prediction computed",
		slog.String("player", player.Name),
		slog.Int("samples", p.Samples),
		slog.Float64("concentration", p.Concentration),
	)
	return p, nil
}

func predict(starts []time.Time, now time.Time) *Prediction {
	est := EstimateStarts(starts, now)
	at := NextOccurrence(est.MinuteOfDay, now)
	return &Prediction{
		At:            at,
		Hour:          est.MinuteOfDay / 60,
		Minute:        est.MinuteOfDay % 60,
		UntilSeconds:  int64(at.Sub(now) / time.Second),
		Concentration: est.Concentration,
		Confidence:    ConfidenceFor(est.Concentration),
		Samples:       est.Samples,
		Overdue:       at.Before(now),
	}
}
