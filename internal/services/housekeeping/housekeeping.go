// Package housekeeping runs periodic maintenance: presence pruning and optional scheduled resets.
package housekeeping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/services/presence"
)

// Publisher delivers presence changes to event rooms.
type Publisher interface {
	Publish(eventID string, msg protocol.Message)
}

// Resetter resets every known event.
type Resetter interface {
	ResetAllEvents(ctx context.Context) (int, error)
}

// Config holds the job schedules. An empty schedule disables its job.
type Config struct {
	PruneSchedule     string
	PresenceTTL       time.Duration
	AutoResetSchedule string
	JobTimeout        time.Duration
}

// Housekeeper owns the cron scheduler.
type Housekeeper struct {
	cron      *cron.Cron
	cfg       Config
	presence  *presence.Registry
	publisher Publisher
	resetter  Resetter
}

// New registers the configured jobs. It fails on an unparsable schedule.
func New(cfg Config, registry *presence.Registry, publisher Publisher, resetter Resetter) (*Housekeeper, error) {
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = 2 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	logger := cronLogger{}
	h := &Housekeeper{
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		cfg:       cfg,
		presence:  registry,
		publisher: publisher,
		resetter:  resetter,
	}

	if cfg.PruneSchedule != "" && registry != nil {
		if _, err := h.cron.AddFunc(cfg.PruneSchedule, func() { h.PrunePresence() }); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSchedule, err)
		}
	}
	if cfg.AutoResetSchedule != "" && resetter != nil {
		if _, err := h.cron.AddFunc(cfg.AutoResetSchedule, h.autoReset); err != nil {
			return nil, fmt.Errorf("invalid auto reset schedule %q: %w", cfg.AutoResetSchedule, err)
		}
	}
	return h, nil
}

// Jobs returns the number of registered jobs.
func (h *Housekeeper) Jobs() int {
	return len(h.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (h *Housekeeper) Start() {
	h.cron.Start()
	log.Info().Int("jobs", h.Jobs()).Msg("housekeeping started")
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (h *Housekeeper) Stop(ctx context.Context) {
	select {
	case <-h.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("housekeeping stop timed out")
	}
}

// PrunePresence drops stale viewers and rebroadcasts each affected event's list.
func (h *Housekeeper) PrunePresence() int {
	affected := h.presence.Prune(h.cfg.PresenceTTL)
	if len(affected) == 0 {
		return 0
	}
	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if h.publisher != nil {
			h.publisher.Publish(id, protocol.PresenceUpdated{Viewers: affected[id]})
		}
	}
	log.Info().Int("events", len(ids)).Msg("pruned stale presence")
	return len(ids)
}

// AutoReset resets every event now.
func (h *Housekeeper) AutoReset(ctx context.Context) (int, error) {
	n, err := h.resetter.ResetAllEvents(ctx)
	if err != nil {
		return n, fmt.Errorf("scheduled reset failed: %w", err)
	}
	log.Info().Int("events", n).Msg("scheduled reset of all events")
	return n, nil
}

func (h *Housekeeper) autoReset() {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.JobTimeout)
	defer cancel()
	if _, err := h.AutoReset(ctx); err != nil {
		log.Error().Err(err).Msg("housekeeping job failed")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Str("component", "cron").Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Str("component", "cron").Fields(keysAndValues).Msg(msg)
}
