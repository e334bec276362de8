// Package scheduler runs the background jobs of the service: the initial and
// periodic reference data imports, the registry heartbeat and data freshness
// monitoring.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/medpricing/medical-data-service/interfaces"
	"github.com/medpricing/medical-data-service/logging"
)

const (
	registryTimeout  = 10 * time.Second
	monitorInterval  = time.Hour
	staleDataTimeout = 25 * time.Hour
)

// Options configures the scheduled jobs
type Options struct {
	// BeatInterval is the registry heartbeat period
	BeatInterval time.Duration
	// ReloadAt lists daily reload times as "HH:MM;HH:MM". Empty disables reloads.
	ReloadAt string
}

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Scheduler handles data imports, registry heartbeats and freshness monitoring
type Scheduler struct {
	store     interfaces.RecordStore
	importer  interfaces.Importer
	registry  interfaces.Registry // nil when registration is disabled
	opts      Options
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
}

// NewScheduler creates a scheduler. registry may be nil.
func NewScheduler(store interfaces.RecordStore, importer interfaces.Importer, registry interfaces.Registry, opts Options) *Scheduler {
	if opts.BeatInterval <= 0 {
		opts.BeatInterval = 5 * time.Second
	}
	return &Scheduler{
		store:     store,
		importer:  importer,
		registry:  registry,
		opts:      opts,
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start performs the initial import, registers the instance and starts the jobs.
// A failed import is fatal, a failed registration is retried by the heartbeat.
func (s *Scheduler) Start() error {
	if err := s.updateData(); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		err := s.registry.Register(ctx)
		cancel()
		if err != nil {
			logging.Error("Failed to register service", "error", err)
		}

		_, err = s.scheduler.Every(s.opts.BeatInterval).WaitForSchedule().SingletonMode().Do(s.heartbeat)
		if err != nil {
			return fmt.Errorf("failed to schedule heartbeat: %w", err)
		}
	}

	if s.opts.ReloadAt != "" {
		_, err := s.scheduler.Every(1).Days().At(s.opts.ReloadAt).SingletonMode().Do(func() {
			if err := s.updateData(); err != nil {
				logging.Error("Failed to update data", "error", err)
			}
		})
		if err != nil {
			logging.Error("Failed to schedule updates", "error", err)
			return fmt.Errorf("failed to schedule updates: %w", err)
		}
	}

	s.scheduler.StartAsync()

	if s.opts.ReloadAt != "" {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.monitorFreshness(ctx, monitorInterval)
	}

	return nil
}

// Stop stops the jobs and deregisters the instance
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	if s.registry != nil && s.registry.Registered() {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		defer cancel()
		if err := s.registry.Deregister(ctx); err != nil {
			logging.Warn("Failed to deregister service", "error", err)
		}
	}
}

// heartbeat sends one beat, registering again when the server lost the instance
func (s *Scheduler) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()

	if !s.registry.Registered() {
		if err := s.registry.Register(ctx); err != nil {
			logging.Warn("Service registration retry failed", "error", err)
		}
		return
	}

	err := s.registry.Beat(ctx)
	if err == nil {
		return
	}
	logging.Warn("Heartbeat failed", "error", err)

	if !s.registry.Registered() {
		if err := s.registry.Register(ctx); err != nil {
			logging.Warn("Service registration retry failed", "error", err)
		}
	}
}

// updateData performs a complete data import
func (s *Scheduler) updateData() error {
	// Prevent concurrent updates
	if !s.store.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.store.EndUpdate()

	logging.Info("Starting reference data import", "started_at", time.Now().Format(time.RFC3339))

	counts, err := s.importer.Load(context.Background(), s.store)
	if err != nil {
		return err
	}
	if counts.Diseases == 0 {
		logging.Warn("Import finished without any disease record")
	}

	return nil
}

// monitorFreshness warns when the scheduled reloads stop refreshing the data
func (s *Scheduler) monitorFreshness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkFreshness()
		}
	}
}

func (s *Scheduler) checkFreshness() bool {
	lastUpdate := s.store.GetLastUpdated()
	if time.Since(lastUpdate) > staleDataTimeout {
		logging.Warn("Data hasn't been updated in over 25 hours", "last_update", lastUpdate)
		return false
	}
	return true
}
