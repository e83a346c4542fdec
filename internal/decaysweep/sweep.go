// Package decaysweep runs the proactive decay sweep: a scheduled job that
// walks every agent and applies time-decay to any that have gone dormant,
// supplementing the lazy on-read decay in internal/reputation so a
// long-idle agent's score reflects reality even if nobody reads it.
//
// The lazy path (verdict.Service.Verdict, compliance.Service.Report) is
// the primary decay mechanism; this sweep is the operational backstop a
// real deployment would run alongside it so dashboards and leaderboards
// built over ListAgents don't serve stale composites indefinitely for
// agents nobody happens to query.
package decaysweep

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/garl-network/trust-ledger/internal/core"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/storage"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

// DefaultSchedule runs the sweep once an hour.
const DefaultSchedule = "0 * * * *"

// Descriptor advertises this component's placement.
var Descriptor = core.Descriptor{
	Name:         "decay-sweep",
	Layer:        core.LayerEngine,
	Capabilities: []string{"sweep"},
}

// Sweeper periodically applies decay to every dormant agent.
type Sweeper struct {
	agents storage.AgentStore
	locks  storage.Locker
	repCfg reputation.Config
	log    *logger.Logger
	cron   *cron.Cron
}

// New constructs a Sweeper. It does not start the schedule until Start is
// called.
func New(agents storage.AgentStore, locks storage.Locker, repCfg reputation.Config, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("decay-sweep")
	}
	return &Sweeper{
		agents: agents,
		locks:  locks,
		repCfg: repCfg,
		log:    log,
		cron:   cron.New(),
	}
}

// Start registers the sweep on schedule and begins the cron scheduler's own
// goroutine. schedule is a standard 5-field cron expression; DefaultSchedule
// is used if empty.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.Run(ctx); err != nil {
			s.log.WithError(err).Warn("decay sweep completed with errors")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", schedule).Info("decay sweep scheduled")
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Run sweeps every category once, applying and persisting decay for every
// dormant agent it finds. Safe to call directly (e.g. from an admin
// endpoint) outside of the schedule. Per-category listing failures are
// aggregated rather than aborting the whole sweep, since one unreachable
// shard should not block decay from running against the rest.
func (s *Sweeper) Run(ctx context.Context) error {
	var errs *multierror.Error
	total, decayed := 0, 0
	for category := range agent.ValidCategories {
		agents, err := s.agents.ListAgents(ctx, category, false)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("list agents for category %s: %w", category, err))
			continue
		}
		for _, a := range agents {
			total++
			if s.sweepOne(ctx, a) {
				decayed++
			}
		}
	}
	s.log.WithField("agents_scanned", total).WithField("agents_decayed", decayed).Info("decay sweep complete")
	return errs.ErrorOrNil()
}

func (s *Sweeper) sweepOne(ctx context.Context, a agent.Agent) bool {
	s.locks.Lock(a.ID)
	defer s.locks.Unlock(a.ID)

	current, err := s.agents.GetAgent(ctx, a.ID)
	if err != nil {
		s.log.WithError(err).WithField("agent_id", a.ID).Warn("reload agent for decay sweep failed")
		return false
	}

	decayedAgent, event := reputation.ApplyDecay(s.repCfg, current, time.Now().UTC())
	if event == nil {
		return false
	}
	if _, err := s.agents.UpdateAgent(ctx, decayedAgent); err != nil {
		s.log.WithError(err).WithField("agent_id", a.ID).Warn("persist decayed agent failed")
		return false
	}
	return true
}
