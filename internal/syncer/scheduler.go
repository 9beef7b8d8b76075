package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/normalize"
	"sheetcal/internal/reconcile"
)

// Scheduler re-syncs every auto_sync source on a cron schedule. Prompts
// are answered by a fixed policy since nobody is there to ask.
type Scheduler struct {
	svc     *Service
	cron    *cron.Cron
	confirm reconcile.Confirmer
	timeout time.Duration
}

// NewScheduler parses spec (standard five-field cron syntax).
func NewScheduler(svc *Service, spec string, confirm reconcile.Confirmer) (*Scheduler, error) {
	if confirm == nil {
		confirm = reconcile.StaticConfirmer(false)
	}
	s := &Scheduler{
		svc:     svc,
		confirm: confirm,
		timeout: 10 * time.Minute,
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("sync_cron %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops scheduling and waits for a running sync to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce syncs every auto_sync source in order and returns how many
// finished without error.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ok := 0
	for _, src := range s.svc.Sources() {
		if !src.AutoSync {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res, err := s.svc.Sync(ctx, src.ID, normalize.Overrides{}, s.confirm)
		switch {
		case errors.Is(err, ErrBusy):
			appLog.Warn("scheduled sync skipped, another sync is running", "source", src.ID)
		case err != nil:
			appLog.Error("scheduled sync failed", err, "source", src.ID)
		default:
			ok++
			appLog.Info("scheduled sync done", "source", src.ID, "created", res.Created, "updated", res.Updated, "kept", res.Kept, "failed", res.Failed)
		}
	}
	return ok
}
