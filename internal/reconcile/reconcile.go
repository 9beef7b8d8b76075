package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// ErrNoKeyFinder is returned by the key strategy when the calendar cannot
// look entries up by private key.
var ErrNoKeyFinder = errors.New("calendar does not support lookup by private key")

// Strategy selects how existing entries are matched. A reconciler uses
// exactly one.
type Strategy string

const (
	// StrategyKey looks entries up by the event id stored as private
	// metadata and updates them in place.
	StrategyKey Strategy = "key"
	// StrategyDayScan compares against every entry of the event's day and
	// asks before moving or replacing entries.
	StrategyDayScan Strategy = "dayscan"
)

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyKey:
		return StrategyKey, nil
	case StrategyDayScan, "day_scan", "day-scan":
		return StrategyDayScan, nil
	default:
		return "", fmt.Errorf("unknown reconcile strategy %q", s)
	}
}

// Outcome is the per-event result reported to an Observer.
type Outcome string

const (
	OutcomeKept     Outcome = "kept"
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFailed   Outcome = "failed"
	OutcomeDeclined Outcome = "declined"
)

// Observer receives one call per processed event.
type Observer interface {
	ObserveOutcome(Outcome)
}

type Option func(*Reconciler)

func WithStrategy(s Strategy) Option {
	return func(r *Reconciler) { r.strategy = s }
}

// WithConfirmer sets who approves destructive steps. Without one every
// prompt is declined.
func WithConfirmer(c Confirmer) Option {
	return func(r *Reconciler) { r.confirm = c }
}

func WithTimeZone(tz string) Option {
	return func(r *Reconciler) { r.timeZone = tz }
}

func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

// Reconciler applies events to one calendar, one event at a time.
type Reconciler struct {
	cal      Calendar
	strategy Strategy
	confirm  Confirmer
	timeZone string
	observer Observer
}

func New(cal Calendar, opts ...Option) *Reconciler {
	r := &Reconciler{
		cal:      cal,
		strategy: StrategyKey,
		confirm:  StaticConfirmer(false),
		timeZone: DefaultTimeZone,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategy returns the matching strategy in use.
func (r *Reconciler) Strategy() Strategy { return r.strategy }

// Reconcile processes events in order. Per-event failures are counted and
// logged without stopping the run. Each element's Status and Error record
// its outcome. If ctx is cancelled the counts so far are returned together
// with ctx.Err().
func (r *Reconciler) Reconcile(ctx context.Context, events []model.NormalizedEvent) (model.SyncResult, error) {
	var res model.SyncResult

	var finder KeyFinder
	if r.strategy == StrategyKey {
		f, ok := r.cal.(KeyFinder)
		if !ok {
			return res, ErrNoKeyFinder
		}
		finder = f
	}

	appLog.Info("reconcile start", "events", len(events), "strategy", r.strategy)
	for i := range events {
		if err := ctx.Err(); err != nil {
			res.Log(fmt.Sprintf("stopped after %d of %d events: %v", i, len(events), err))
			appLog.Warn("reconcile interrupted", "done", i, "total", len(events))
			return res, err
		}

		var (
			outcome Outcome
			err     error
		)
		if finder != nil {
			outcome, err = r.byKey(ctx, finder, events[i])
		} else {
			outcome, err = r.byDay(ctx, events[i], &res)
		}
		r.record(&res, &events[i], outcome, err)

		if err != nil && ctx.Err() != nil {
			res.Log(fmt.Sprintf("stopped after %d of %d events: %v", i+1, len(events), ctx.Err()))
			return res, ctx.Err()
		}
	}

	appLog.Info("reconcile done",
		"created", res.Created, "updated", res.Updated, "kept", res.Kept,
		"failed", res.Failed, "declined", res.Declined, "deleted", res.Deleted,
	)
	return res, nil
}

// errDeclined marks a step the confirmer refused.
var errDeclined = errors.New("not confirmed")

func (r *Reconciler) record(res *model.SyncResult, e *model.NormalizedEvent, outcome Outcome, err error) {
	title := e.Title()
	switch {
	case errors.Is(err, errDeclined):
		outcome = OutcomeDeclined
		res.Failed++
		res.Declined++
		e.Status, e.Error = model.StatusFailed, err.Error()
		res.Log(fmt.Sprintf("declined: %s: %v", title, err))
		appLog.Info("reconcile declined", "title", title)
	case err != nil:
		outcome = OutcomeFailed
		res.Failed++
		e.Status, e.Error = model.StatusFailed, err.Error()
		res.Log(fmt.Sprintf("failed: %s: %v", title, err))
		appLog.Error("reconcile event failed", err, "title", title, "id", e.ID)
	default:
		e.Status, e.Error = model.StatusSynced, ""
		switch outcome {
		case OutcomeKept:
			res.Kept++
		case OutcomeCreated:
			res.Created++
		case OutcomeUpdated:
			res.Updated++
		}
		res.Log(fmt.Sprintf("%s: %s (%s)", outcome, title, span(*e)))
	}
	if r.observer != nil {
		r.observer.ObserveOutcome(outcome)
	}
}

func (r *Reconciler) byKey(ctx context.Context, finder KeyFinder, e model.NormalizedEvent) (Outcome, error) {
	payload := Payload(e, r.timeZone)

	existing, found, err := finder.FindByKey(ctx, e.ID)
	if err != nil {
		return "", fmt.Errorf("lookup: %w", err)
	}
	if !found {
		if _, err := r.cal.CreateEvent(ctx, payload); err != nil {
			return "", fmt.Errorf("create: %w", err)
		}
		return OutcomeCreated, nil
	}
	if existing.Summary == payload.Summary && existing.Start.Equal(payload.Start) && existing.End.Equal(payload.End) {
		return OutcomeKept, nil
	}
	if err := r.cal.UpdateEvent(ctx, existing.ID, payload); err != nil {
		return "", fmt.Errorf("update %s: %w", existing.ID, err)
	}
	return OutcomeUpdated, nil
}

func (r *Reconciler) byDay(ctx context.Context, e model.NormalizedEvent, res *model.SyncResult) (Outcome, error) {
	payload := Payload(e, r.timeZone)

	existing, err := r.cal.ListEventsForDay(ctx, e.StartTime)
	if err != nil {
		return "", fmt.Errorf("list day: %w", err)
	}

	var sameTitle, overlapping []model.ExistingEvent
	for _, ex := range existing {
		switch {
		case ex.Summary == payload.Summary:
			if ex.Start.Equal(payload.Start) {
				return OutcomeKept, nil
			}
			sameTitle = append(sameTitle, ex)
		case ex.Overlaps(payload.Start, payload.End):
			overlapping = append(overlapping, ex)
		}
	}

	outcome := OutcomeCreated
	var replace []model.ExistingEvent
	switch {
	case len(sameTitle) > 0:
		outcome = OutcomeUpdated
		replace = sameTitle
		if err := r.ask(ctx, Prompt{Kind: PromptShift, Event: e, Existing: sameTitle}); err != nil {
			return "", err
		}
	case len(overlapping) > 0:
		replace = overlapping
		if err := r.ask(ctx, Prompt{Kind: PromptConflict, Event: e, Existing: overlapping}); err != nil {
			return "", err
		}
	}

	for _, ex := range replace {
		if err := r.cal.DeleteEvent(ctx, ex.ID); err != nil {
			// The new entry is still created; the stale one stays behind.
			res.Log(fmt.Sprintf("delete failed: %s: %v", ex.Summary, err))
			appLog.Error("reconcile delete failed", err, "id", ex.ID, "summary", ex.Summary)
			continue
		}
		res.Deleted++
	}

	if _, err := r.cal.CreateEvent(ctx, payload); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	return outcome, nil
}

func (r *Reconciler) ask(ctx context.Context, p Prompt) error {
	ok, err := r.confirm.Confirm(ctx, p)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", p.Kind, err)
	}
	if !ok {
		return fmt.Errorf("%s %w", p.Kind, errDeclined)
	}
	return nil
}
