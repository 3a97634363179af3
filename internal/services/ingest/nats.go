package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/metrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
)

// Feed message kinds, the last token of the subject
const (
	KindPresence = "presence"
	KindEntity   = "entity"
	KindTeam     = "team"
	KindVending  = "vending"
)

// FeedConfig configures the NATS live feed subscription
type FeedConfig struct {
	URL           string        `koanf:"url"`
	Subject       string        `koanf:"subject"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	// Embedded runs a broker in-process; URL is then ignored
	Embedded EmbeddedConfig `koanf:"embedded"`
}

// DefaultFeedConfig returns the default feed settings. An empty URL disables the feed.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Subject:       "tracker",
		MaxReconnects: 10,
		ReconnectWait: time.Second,
		Embedded:      EmbeddedConfig{Host: "127.0.0.1", Port: 4222},
	}
}

// Subject returns the subject a feed producer publishes kind events of a group on
func Subject(prefix string, group model.GroupID, kind string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, group, kind)
}

// FeedSource subscribes to <subject>.<group>.<kind> and hands each message to
// the ingestor. NATS delivers one subscription's messages on a single
// goroutine, so the events of a group are applied in arrival order.
type FeedSource struct {
	cfg      FeedConfig
	ingestor *Ingestor
	logger   *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewFeedSource creates a feed source
func NewFeedSource(cfg FeedConfig, ingestor *Ingestor, logger *slog.Logger) *FeedSource {
	if cfg.Subject == "" {
		cfg.Subject = DefaultFeedConfig().Subject
	}
	return &FeedSource{
		cfg:      cfg,
		ingestor: ingestor,
		logger:   logger.With(slog.String("component", "feed")),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the first subscription is in place
func (f *FeedSource) Ready() <-chan struct{} {
	return f.ready
}

// Serve runs the subscription until ctx is cancelled. A failed connection
// returns an error so the supervisor restarts it with backoff.
func (f *FeedSource) Serve(ctx context.Context) error {
	nc, err := nats.Connect(f.cfg.URL,
		nats.Name("presence-tracker"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(f.cfg.MaxReconnects),
		nats.ReconnectWait(f.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				metrics.FeedErrorsTotal.Inc()
				f.logger.Warn("feed disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			f.logger.Info("feed reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			metrics.FeedErrorsTotal.Inc()
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			f.logger.Error("feed error", slog.String("subject", subject), slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to feed: %w", err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(f.cfg.Subject+".*.*", func(msg *nats.Msg) {
		f.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to feed: %w", err)
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("flushing feed subscription: %w", err)
	}
	f.logger.Info("feed subscribed", slog.String("subject", sub.Subject))
	f.readyOnce.Do(func() { close(f.ready) })

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		f.logger.Warn("feed unsubscribe failed", slog.String("error", err.Error()))
	}
	return ctx.Err()
}

func (f *FeedSource) String() string {
	return "feed"
}

func (f *FeedSource) handle(ctx context.Context, msg *nats.Msg) {
	group, kind, err := f.parseSubject(msg.Subject)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("unknown", resultInvalid).Inc()
		f.logger.Warn("unroutable feed message", slog.String("subject", msg.Subject))
		return
	}

	err = f.dispatch(ctx, group, kind, msg.Data)
	if err != nil {
		metrics.FeedErrorsTotal.Inc()
		f.logger.Error("feed event failed",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
	}
}

func (f *FeedSource) dispatch(ctx context.Context, group model.GroupID, kind string, data []byte) error {
	switch kind {
	case KindPresence:
		var ev model.PresenceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			metrics.IngestEventsTotal.WithLabelValues(kind, resultInvalid).Inc()
			return fmt.Errorf("decoding presence event: %w", err)
		}
		ev.Group = group
		return f.ingestor.HandlePresence(ctx, ev)
	case KindEntity:
		var ev model.EntityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			metrics.IngestEventsTotal.WithLabelValues(kind, resultInvalid).Inc()
			return fmt.Errorf("decoding entity event: %w", err)
		}
		ev.Group = group
		return f.ingestor.HandleEntity(ctx, ev)
	case KindTeam:
		var snap model.TeamSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			metrics.IngestEventsTotal.WithLabelValues(kind, resultInvalid).Inc()
			return fmt.Errorf("decoding team snapshot: %w", err)
		}
		snap.Group = group
		return f.ingestor.HandleTeam(ctx, snap)
	case KindVending:
		var b model.VendingBroadcast
		if err := json.Unmarshal(data, &b); err != nil {
			metrics.IngestEventsTotal.WithLabelValues(kind, resultInvalid).Inc()
			return fmt.Errorf("decoding vending broadcast: %w", err)
		}
		b.Group = group
		return f.ingestor.HandleVending(ctx, b)
	default:
		metrics.IngestEventsTotal.WithLabelValues("unknown", resultInvalid).Inc()
		return fmt.Errorf("unknown feed kind %q", kind)
	}
}

// parseSubject splits <subject>.<group>.<kind>
func (f *FeedSource) parseSubject(subject string) (model.GroupID, string, error) {
	rest, ok := strings.CutPrefix(subject, f.cfg.Subject+".")
	if !ok {
		return 0, "", fmt.Errorf("subject %q outside %q", subject, f.cfg.Subject)
	}
	groupToken, kind, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, "", fmt.Errorf("subject %q has no kind", subject)
	}
	group, err := model.ParseGroupID(groupToken)
	if err != nil {
		return 0, "", err
	}
	return group, kind, nil
}
