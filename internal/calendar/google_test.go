package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"sheetcal/internal/model"
	"sheetcal/internal/reconcile"
	"sheetcal/internal/timeparse"
)

type fakeGoogle struct {
	mu      sync.Mutex
	events  map[string]*gcal.Event
	order   []string
	next    int
	queries []string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/calendars/cal/events")
	if !ok {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(rest, "/")

	switch {
	case r.Method == http.MethodGet && id == "":
		f.queries = append(f.queries, r.URL.RawQuery)
		json.NewEncoder(w).Encode(&gcal.Events{Items: f.list(r)})
	case r.Method == http.MethodPost && id == "":
		var ev gcal.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.next++
		ev.Id = "g" + strconv.Itoa(f.next)
		f.events[ev.Id] = &ev
		f.order = append(f.order, ev.Id)
		json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodPut && id != "":
		var ev gcal.Event
		json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = id
		f.events[id] = &ev
		json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodDelete && id != "":
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unexpected", http.StatusBadRequest)
	}
}

func (f *fakeGoogle) list(r *http.Request) []*gcal.Event {
	q := r.URL.Query()
	var out []*gcal.Event
	for _, id := range f.order {
		ev, ok := f.events[id]
		if !ok {
			continue
		}
		if prop := q.Get("privateExtendedProperty"); prop != "" {
			k, v, _ := strings.Cut(prop, "=")
			if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private[k] != v {
				continue
			}
			out = append(out, ev)
			continue
		}
		min, _ := time.Parse(time.RFC3339, q.Get("timeMin"))
		max, _ := time.Parse(time.RFC3339, q.Get("timeMax"))
		var start time.Time
		if ev.Start.DateTime != "" {
			start, _ = time.Parse(time.RFC3339, ev.Start.DateTime)
		} else {
			start, _ = time.ParseInLocation("2006-01-02", ev.Start.Date, timeparse.CivilZone)
		}
		if !start.Before(min) && start.Before(max) {
			out = append(out, ev)
		}
	}
	return out
}

func newTestGoogle(t *testing.T) (*Google, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{events: map[string]*gcal.Event{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	g, err := NewGoogle(context.Background(), "cal", timeparse.CivilZone,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return g, fake
}

func civilAt(d, hh, mm int) time.Time {
	return time.Date(2026, time.January, d, hh, mm, 0, 0, timeparse.CivilZone)
}

func testPayload(key string, start, end time.Time) model.EventPayload {
	return model.EventPayload{
		Key:         key,
		Summary:     "[Coi thi] - A",
		Description: "Tên: A",
		Location:    "B1-203",
		Start:       start,
		End:         end,
		TimeZone:    reconcile.DefaultTimeZone,
		Attendees:   []string{"a@example.com"},
		Private:     map[string]string{reconcile.PrivateKeyRowID: key, reconcile.PrivateKeyPerson: "A"},
	}
}

func TestGoogleCreateAndFind(t *testing.T) {
	g, fake := newTestGoogle(t)
	ctx := context.Background()

	id, err := g.CreateEvent(ctx, testPayload("k1", civilAt(27, 7, 0), civilAt(27, 9, 15)))
	require.NoError(t, err)
	assert.Equal(t, "g1", id)

	stored := fake.events["g1"]
	require.NotNil(t, stored)
	assert.Equal(t, "[Coi thi] - A", stored.Summary)
	assert.Equal(t, "Asia/Ho_Chi_Minh", stored.Start.TimeZone)
	assert.Equal(t, "2026-01-27T07:00:00+07:00", stored.Start.DateTime)
	assert.True(t, stored.Reminders.UseDefault)
	assert.Equal(t, "k1", stored.ExtendedProperties.Private["sheetRowId"])
	require.Len(t, stored.Attendees, 1)
	assert.Equal(t, "a@example.com", stored.Attendees[0].Email)

	found, ok, err := g.FindByKey(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", found.ID)
	assert.Equal(t, "k1", found.Key)
	assert.True(t, found.Start.Equal(civilAt(27, 7, 0)))
	assert.Contains(t, fake.queries[len(fake.queries)-1], "privateExtendedProperty=sheetRowId%3Dk1")

	_, ok, err = g.FindByKey(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGoogleListUpdateDelete(t *testing.T) {
	g, fake := newTestGoogle(t)
	ctx := context.Background()

	_, err := g.CreateEvent(ctx, testPayload("k1", civilAt(27, 7, 0), civilAt(27, 9, 15)))
	require.NoError(t, err)
	_, err = g.CreateEvent(ctx, testPayload("k2", civilAt(28, 7, 0), civilAt(28, 9, 15)))
	require.NoError(t, err)
	fake.events["allday"] = &gcal.Event{Id: "allday", Summary: "Holiday", Start: &gcal.EventDateTime{Date: "2026-01-27"}, End: &gcal.EventDateTime{Date: "2026-01-28"}}
	fake.order = append(fake.order, "allday")

	day, err := g.ListEventsForDay(ctx, civilAt(27, 12, 0))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "g1", day[0].ID)
	assert.Equal(t, "Holiday", day[1].Summary)
	assert.True(t, day[1].Start.Equal(civilAt(27, 0, 0)))
	assert.Contains(t, fake.queries[len(fake.queries)-1], "singleEvents=true")

	moved := testPayload("k1", civilAt(27, 9, 30), civilAt(27, 11, 45))
	require.NoError(t, g.UpdateEvent(ctx, "g1", moved))
	assert.Equal(t, "2026-01-27T09:30:00+07:00", fake.events["g1"].Start.DateTime)

	require.NoError(t, g.DeleteEvent(ctx, "g2"))
	_, ok := fake.events["g2"]
	assert.False(t, ok)
}

func TestGoogleWithReconciler(t *testing.T) {
	g, fake := newTestGoogle(t)
	r := reconcile.New(g)

	events := []model.NormalizedEvent{{
		ID:        "row-1",
		StartTime: civilAt(27, 7, 0),
		EndTime:   civilAt(27, 9, 15),
		Person:    "A",
		Task:      "Coi thi",
		Location:  "B1-203",
	}}

	res, err := r.Reconcile(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	res, err = r.Reconcile(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Kept)
	assert.Len(t, fake.events, 1)
}

func TestGoogleAuthOptions(t *testing.T) {
	t.Setenv("SHEETCAL_TEST_TOKEN", "tok")

	opts, err := GoogleAuth{TokenEnv: "SHEETCAL_TEST_TOKEN", CredentialsFile: "ignored.json"}.ClientOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	_, err = GoogleAuth{TokenEnv: "SHEETCAL_TEST_TOKEN_UNSET"}.ClientOptions()
	assert.Error(t, err)

	_, err = GoogleAuth{}.ClientOptions()
	assert.Error(t, err)
}
