package reconcile

import (
	"context"
	"fmt"
	"strings"

	"sheetcal/internal/model"
)

// PromptKind says why a confirmation is requested.
type PromptKind string

const (
	// PromptShift: an entry with the same title exists at another time.
	PromptShift PromptKind = "shift"
	// PromptConflict: entries with other titles overlap the new event.
	PromptConflict PromptKind = "conflict"
)

// Prompt describes one destructive step awaiting a decision.
type Prompt struct {
	Kind     PromptKind
	Event    model.NormalizedEvent
	Existing []model.ExistingEvent
}

// Message renders the prompt for a human.
func (p Prompt) Message() string {
	var b strings.Builder
	switch p.Kind {
	case PromptShift:
		fmt.Fprintf(&b, "%q already exists at another time. Move it to %s?", p.Event.Title(), span(p.Event))
	default:
		fmt.Fprintf(&b, "%q (%s) overlaps existing entries. Delete them and create it?", p.Event.Title(), span(p.Event))
	}
	for _, ex := range p.Existing {
		fmt.Fprintf(&b, "\n  - %s %s-%s", ex.Summary, ex.Start.Format("2006-01-02 15:04"), ex.End.Format("15:04"))
	}
	return b.String()
}

func span(e model.NormalizedEvent) string {
	return e.StartTime.Format("2006-01-02 15:04") + "-" + e.EndTime.Format("15:04")
}

// Confirmer decides whether a destructive step may proceed. Confirm may
// block for as long as a human needs; it must return when ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// StaticConfirmer answers every prompt the same way. It suits unattended
// runs.
type StaticConfirmer bool

func (s StaticConfirmer) Confirm(context.Context, Prompt) (bool, error) {
	return bool(s), nil
}

// Decision is a pending prompt handed out by ChannelConfirmer.
type Decision struct {
	Prompt Prompt
	reply  chan bool
}

// Resolve answers the prompt. Only the first call has an effect.
func (d Decision) Resolve(ok bool) {
	select {
	case d.reply <- ok:
	default:
	}
}

// ChannelConfirmer forwards prompts to whoever reads Decisions, e.g. a web
// handler waiting on a user.
type ChannelConfirmer struct {
	decisions chan Decision
}

func NewChannelConfirmer() *ChannelConfirmer {
	return &ChannelConfirmer{decisions: make(chan Decision)}
}

// Decisions yields one Decision per prompt.
func (c *ChannelConfirmer) Decisions() <-chan Decision {
	return c.decisions
}

func (c *ChannelConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	d := Decision{Prompt: p, reply: make(chan bool, 1)}
	select {
	case c.decisions <- d:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-d.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
