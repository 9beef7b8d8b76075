package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/reconcile"
)

// DefaultRelayCalendar is the calendar name sent when none is configured.
const DefaultRelayCalendar = "Schedule Teaching"

// Relay posts events to an Apps Script web app that writes them to a
// calendar by name. The relay can only create: it lists nothing, and
// updates and deletes return ErrUnsupported.
type Relay struct {
	url          string
	calendarName string
	client       *http.Client
}

func NewRelay(url, calendarName string) *Relay {
	if calendarName == "" {
		calendarName = DefaultRelayCalendar
	}
	return &Relay{
		url:          url,
		calendarName: calendarName,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

var _ reconcile.Calendar = (*Relay)(nil)

type relayEvent struct {
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Guests      string `json:"guests,omitempty"`
}

type relayPayload struct {
	CalendarName string       `json:"calendarName"`
	Events       []relayEvent `json:"events"`
}

type relayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		Total   int `json:"total"`
		Success int `json:"success"`
		Failed  int `json:"failed"`
		Errors  []struct {
			Index   int    `json:"index"`
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"errors,omitempty"`
	} `json:"data,omitempty"`
}

func (r *Relay) ListEventsForDay(context.Context, time.Time) ([]model.ExistingEvent, error) {
	return nil, nil
}

// CreateEvent sends a one-event batch. The relay returns no id, so the
// event key is returned instead.
func (r *Relay) CreateEvent(ctx context.Context, p model.EventPayload) (string, error) {
	if r.url == "" {
		return "", errors.New("relay url is empty")
	}

	body, err := json.Marshal(relayPayload{
		CalendarName: r.calendarName,
		Events: []relayEvent{{
			Title:       p.Summary,
			Start:       p.Start.Format(time.RFC3339),
			End:         p.End.Format(time.RFC3339),
			Location:    p.Location,
			Description: p.Description,
			Guests:      strings.Join(p.Attendees, ","),
		}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay: %s", resp.Status)
	}

	var out relayResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("relay: decode response: %w", err)
	}
	if out.Status != "success" {
		return "", fmt.Errorf("relay: %s", out.Message)
	}
	if out.Data != nil && out.Data.Failed > 0 {
		msg := out.Message
		if len(out.Data.Errors) > 0 {
			msg = out.Data.Errors[0].Message
		}
		return "", fmt.Errorf("relay: %s", msg)
	}

	appLog.Debug("relay event created", "title", p.Summary, "calendar", r.calendarName)
	return p.Key, nil
}

func (r *Relay) UpdateEvent(context.Context, string, model.EventPayload) error {
	return fmt.Errorf("relay update: %w", ErrUnsupported)
}

func (r *Relay) DeleteEvent(context.Context, string) error {
	return fmt.Errorf("relay delete: %w", ErrUnsupported)
}
