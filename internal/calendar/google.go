package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/reconcile"
)

// GoogleAuth selects how the Google client authenticates. TokenEnv wins
// over CredentialsFile when both are set.
type GoogleAuth struct {
	// CredentialsFile is a service account or authorized-user JSON file.
	CredentialsFile string
	// TokenEnv names an environment variable holding an OAuth access token.
	TokenEnv string
}

// ClientOptions turns a into API client options.
func (a GoogleAuth) ClientOptions() ([]option.ClientOption, error) {
	if a.TokenEnv != "" {
		tok := strings.TrimSpace(os.Getenv(a.TokenEnv))
		if tok == "" {
			return nil, fmt.Errorf("environment variable %s is empty", a.TokenEnv)
		}
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})
		return []option.ClientOption{option.WithTokenSource(src)}, nil
	}
	if a.CredentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(a.CredentialsFile)}, nil
	}
	return nil, errors.New("no google credentials configured")
}

// Google writes to one Google Calendar.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogle creates a Google Calendar backend. loc is the civil zone used
// to compute day boundaries.
func NewGoogle(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Google, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar client: %w", err)
	}
	return &Google{svc: svc, calendarID: calendarID, loc: loc}, nil
}

var (
	_ reconcile.Calendar  = (*Google)(nil)
	_ reconcile.KeyFinder = (*Google)(nil)
)

func (g *Google) ListEventsForDay(ctx context.Context, day time.Time) ([]model.ExistingEvent, error) {
	start, end := dayBounds(day, g.loc)

	var out []model.ExistingEvent
	call := g.svc.Events.List(g.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ex, err := g.existing(item)
			if err != nil {
				appLog.Warn("google calendar: skipping event with unreadable time", "id", item.Id, "reason", err.Error())
				continue
			}
			out = append(out, ex)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Google) FindByKey(ctx context.Context, key string) (model.ExistingEvent, bool, error) {
	resp, err := g.svc.Events.List(g.calendarID).
		PrivateExtendedProperty(reconcile.PrivateKeyRowID + "=" + key).
		ShowDeleted(false).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return model.ExistingEvent{}, false, err
	}
	if len(resp.Items) == 0 {
		return model.ExistingEvent{}, false, nil
	}
	ex, err := g.existing(resp.Items[0])
	if err != nil {
		return model.ExistingEvent{}, false, err
	}
	return ex, true, nil
}

func (g *Google) CreateEvent(ctx context.Context, p model.EventPayload) (string, error) {
	ev, err := g.svc.Events.Insert(g.calendarID, toGoogle(p)).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return ev.Id, nil
}

func (g *Google) UpdateEvent(ctx context.Context, id string, p model.EventPayload) error {
	_, err := g.svc.Events.Update(g.calendarID, id, toGoogle(p)).Context(ctx).Do()
	return err
}

func (g *Google) DeleteEvent(ctx context.Context, id string) error {
	return g.svc.Events.Delete(g.calendarID, id).Context(ctx).Do()
}

func (g *Google) existing(item *gcal.Event) (model.ExistingEvent, error) {
	start, err := g.parseTime(item.Start)
	if err != nil {
		return model.ExistingEvent{}, err
	}
	end, err := g.parseTime(item.End)
	if err != nil {
		return model.ExistingEvent{}, err
	}
	ex := model.ExistingEvent{ID: item.Id, Summary: item.Summary, Start: start, End: end}
	if item.ExtendedProperties != nil {
		ex.Key = item.ExtendedProperties.Private[reconcile.PrivateKeyRowID]
	}
	return ex, nil
}

func (g *Google) parseTime(dt *gcal.EventDateTime) (time.Time, error) {
	switch {
	case dt == nil:
		return time.Time{}, errors.New("missing time")
	case dt.DateTime != "":
		return time.Parse(time.RFC3339, dt.DateTime)
	case dt.Date != "":
		// All-day entries start at local midnight.
		return time.ParseInLocation("2006-01-02", dt.Date, g.loc)
	default:
		return time.Time{}, errors.New("empty time")
	}
}

func toGoogle(p model.EventPayload) *gcal.Event {
	ev := &gcal.Event{
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Start:       &gcal.EventDateTime{DateTime: p.Start.Format(time.RFC3339), TimeZone: p.TimeZone},
		End:         &gcal.EventDateTime{DateTime: p.End.Format(time.RFC3339), TimeZone: p.TimeZone},
		Reminders:   &gcal.EventReminders{UseDefault: true},
	}
	if len(p.Private) > 0 {
		ev.ExtendedProperties = &gcal.EventExtendedProperties{Private: p.Private}
	}
	for _, email := range p.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}
	return ev
}
