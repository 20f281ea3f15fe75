package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/jobdone/config"
	"github.com/kilianp07/jobdone/core/reconcile"
	"github.com/kilianp07/jobdone/core/session"
	"github.com/kilianp07/jobdone/infra/logger"
	"github.com/kilianp07/jobdone/infra/mqtt"
)

var timeout time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "time to wait for the broker")
}

// cliSession wraps a session with a change notification channel.
type cliSession struct {
	*session.Session
	changed chan struct{}
}

// dialTransport builds the transport of a CLI session.
var dialTransport = func(cfg *config.Config, id string) (session.Transport, error) {
	if cfg.MQTT.Broker == "" {
		return nil, errors.New("mqtt.broker is not configured")
	}
	tr, err := mqtt.NewTransport(cfg.MQTT, id, logger.New("mqtt"))
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func openSession(ctx context.Context, cfg *config.Config, role session.Role) (*cliSession, error) {
	id := fmt.Sprintf("cli-%s-%s", role, uuid.NewString()[:8])
	tr, err := dialTransport(cfg, id)
	if err != nil {
		return nil, err
	}
	limit := 0
	if role == session.RoleAdmin {
		limit = cfg.Reconciler.AdminLimit
	}
	s, err := session.New(role, tr, session.Options{
		View:   reconcile.New(cfg.Reconciler.Options(limit)),
		Logger: logger.New("session"),
	})
	if err != nil {
		return nil, err
	}
	cs := &cliSession{Session: s, changed: make(chan struct{}, 1)}
	s.OnChange(func() {
		select {
		case cs.changed <- struct{}{}:
		default:
		}
	})
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return cs, nil
}

// waitFor blocks until cond holds after a view change.
func (s *cliSession) waitFor(ctx context.Context, cond func() bool) error {
	for !cond() {
		select {
		case <-s.changed:
		case <-ctx.Done():
			if err := s.LastError(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
	return nil
}

func (s *cliSession) waitConnected(ctx context.Context) error {
	return s.waitFor(ctx, s.Connected)
}
