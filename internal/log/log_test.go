package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLevelFilterAndFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	Info("hidden", "k", 1)
	Warn("date is far from today", "date", "27/01/2030")
	Error("create failed", errors.New("boom"), "id", "e1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] date is far from today date=27/01/2030")
	assert.Contains(t, out, "[ERROR] create failed err=boom id=e1")
}

func TestSubscribe(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	var got []Entry
	cancel := Subscribe(func(e Entry) { got = append(got, e) })
	Warn("time unparseable", "time", "whenever")
	cancel()
	Warn("after cancel")

	require.Len(t, got, 1)
	assert.Equal(t, LevelWarn, got[0].Level)
	assert.Equal(t, "[WARN] time unparseable time=whenever", got[0].Line())
}
