package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayCreate(t *testing.T) {
	var got relayPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"success","message":"ok","data":{"total":1,"success":1,"failed":0}}`))
	}))
	defer srv.Close()

	r := NewRelay(srv.URL, "")
	id, err := r.CreateEvent(context.Background(), testPayload("k1", civilAt(27, 7, 0), civilAt(27, 9, 15)))
	require.NoError(t, err)
	assert.Equal(t, "k1", id)

	assert.Equal(t, DefaultRelayCalendar, got.CalendarName)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "[Coi thi] - A", got.Events[0].Title)
	assert.Equal(t, "2026-01-27T07:00:00+07:00", got.Events[0].Start)
	assert.Equal(t, "2026-01-27T09:15:00+07:00", got.Events[0].End)
	assert.Equal(t, "B1-203", got.Events[0].Location)
	assert.Equal(t, "a@example.com", got.Events[0].Guests)
}

func TestRelayErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "http status", status: http.StatusBadGateway, body: "", want: "502"},
		{name: "error status", status: http.StatusOK, body: `{"status":"error","message":"calendar missing"}`, want: "calendar missing"},
		{name: "failed events", status: http.StatusOK, body: `{"status":"success","message":"done","data":{"total":1,"success":0,"failed":1,"errors":[{"index":0,"title":"x","message":"bad time"}]}}`, want: "bad time"},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewRelay(srv.URL, "Other").CreateEvent(context.Background(), testPayload("k1", civilAt(27, 7, 0), civilAt(27, 9, 15)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRelayCannotListUpdateOrDelete(t *testing.T) {
	r := NewRelay("", "")
	ctx := context.Background()

	day, err := r.ListEventsForDay(ctx, civilAt(27, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, day)

	assert.ErrorIs(t, r.UpdateEvent(ctx, "x", testPayload("k1", civilAt(27, 7, 0), civilAt(27, 9, 15))), ErrUnsupported)
	assert.ErrorIs(t, r.DeleteEvent(ctx, "x"), ErrUnsupported)

	_, err = r.CreateEvent(ctx, testPayload("k1", civilAt(27, 7, 0), civilAt(27, 9, 15)))
	assert.Error(t, err)
}
