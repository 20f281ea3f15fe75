package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/jobdone/core/broker"
	"github.com/kilianp07/jobdone/core/reconcile"
	"github.com/kilianp07/jobdone/core/store"
	"github.com/kilianp07/jobdone/internal/eventbus"
)

// BrokerConfig tunes the broker.
type BrokerConfig struct {
	// SyncLimit is used when a sync request carries no limit.
	SyncLimit int `json:"sync_limit"`
	// SessionBuffer is the per-session notification queue length.
	SessionBuffer int `json:"session_buffer"`
}

func (c *BrokerConfig) SetDefaults() {
	if c.SyncLimit == 0 {
		c.SyncLimit = broker.DefaultSyncLimit
	}
	if c.SessionBuffer == 0 {
		c.SessionBuffer = eventbus.DefaultBuffer
	}
}

func (c BrokerConfig) Validate() error {
	if c.SyncLimit < 1 || c.SyncLimit > store.MaxRecent {
		return fmt.Errorf("broker: sync_limit must be between 1 and %d", store.MaxRecent)
	}
	if c.SessionBuffer < 1 {
		return fmt.Errorf("broker: session_buffer must be positive")
	}
	return nil
}

// ReconcilerConfig tunes the views kept by CLI sessions.
type ReconcilerConfig struct {
	AdminLimit   int           `json:"admin_limit"`
	MatchWindow  time.Duration `json:"match_window"`
	ProcessedCap int           `json:"processed_cap"`
	OrphanAfter  time.Duration `json:"orphan_after"`
}

func (c *ReconcilerConfig) SetDefaults() {
	if c.AdminLimit == 0 {
		c.AdminLimit = reconcile.AdminLimit
	}
	if c.MatchWindow == 0 {
		c.MatchWindow = reconcile.DefaultMatchWindow
	}
	if c.ProcessedCap == 0 {
		c.ProcessedCap = reconcile.DefaultProcessedCap
	}
	if c.OrphanAfter == 0 {
		c.OrphanAfter = 3 * c.MatchWindow
	}
}

func (c ReconcilerConfig) Validate() error {
	if c.AdminLimit < 0 || c.ProcessedCap < 0 {
		return fmt.Errorf("reconciler: limits must not be negative")
	}
	if c.MatchWindow < 0 || c.OrphanAfter < 0 {
		return fmt.Errorf("reconciler: durations must not be negative")
	}
	if c.OrphanAfter > 0 && c.OrphanAfter < c.MatchWindow {
		return fmt.Errorf("reconciler: orphan_after must not be shorter than match_window")
	}
	return nil
}

// Options converts the section for a view of the given length.
func (c ReconcilerConfig) Options(limit int) reconcile.Options {
	return reconcile.Options{
		Limit:        limit,
		MatchWindow:  c.MatchWindow,
		ProcessedCap: c.ProcessedCap,
		OrphanAfter:  c.OrphanAfter,
	}
}
