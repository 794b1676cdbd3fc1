package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MikeSquared-Agency/Territoires/internal/hermes"
	"github.com/MikeSquared-Agency/Territoires/internal/metrics"
)

// Reload triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerAdmin    = "admin"
	TriggerEvent    = "event"
)

type loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Reloader refreshes the held snapshot on a cron schedule, on request over
// hermes, or on demand. A failed reload keeps the previous snapshot.
type Reloader struct {
	loader loader
	holder *Holder
	hermes hermes.Client
	cron   *cron.Cron
	logger *slog.Logger

	mu sync.Mutex // serializes reloads
}

func NewReloader(l loader, holder *Holder, h hermes.Client, logger *slog.Logger) *Reloader {
	if h == nil {
		h = hermes.NoopClient{}
	}
	return &Reloader{
		loader: l,
		holder: holder,
		hermes: h,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With("component", "reloader"),
	}
}

// Reload loads a new snapshot and swaps it in.
func (r *Reloader) Reload(ctx context.Context, trigger string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	snap, err := r.loader.Load(ctx)
	if err != nil {
		metrics.SnapshotReloads.WithLabelValues(trigger, "error").Inc()
		r.logger.Error("snapshot reload failed", "trigger", trigger, "error", err)
		return nil, err
	}
	r.holder.Store(snap)
	metrics.SnapshotReloads.WithLabelValues(trigger, "ok").Inc()

	units, variables := snap.Counts()
	for g, n := range units {
		metrics.SnapshotUnits.WithLabelValues(g).Set(float64(n))
	}
	r.logger.Info("snapshot loaded",
		"snapshot_id", snap.ID,
		"trigger", trigger,
		"units", units,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := r.hermes.Publish(hermes.SubjectSnapshotReloaded, hermes.SnapshotReloadedEvent{
		SnapshotID: snap.ID.String(),
		Units:      units,
		Variables:  variables,
		Trigger:    trigger,
		Timestamp:  snap.LoadedAt,
	}); err != nil {
		r.logger.Warn("failed to publish reload event", "error", err)
	}
	return snap, nil
}

// Start schedules periodic reloads and listens for reload requests. An empty
// schedule disables the cron job.
func (r *Reloader) Start(ctx context.Context, schedule string) error {
	if schedule != "" {
		_, err := r.cron.AddFunc(schedule, func() {
			_, _ = r.Reload(ctx, TriggerSchedule)
		})
		if err != nil {
			return err
		}
		r.logger.Info("reload scheduled", "schedule", schedule)
	}
	r.cron.Start()

	return r.hermes.Subscribe(hermes.SubjectReloadRequest, func(_ string, data []byte) {
		var req hermes.ReloadRequestEvent
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				r.logger.Warn("malformed reload request", "error", err)
				return
			}
		}
		r.logger.Info("reload requested", "reason", req.Reason)
		_, _ = r.Reload(ctx, TriggerEvent)
	})
}

// Stop waits for a running scheduled reload to finish.
func (r *Reloader) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("reloader stopped")
}
