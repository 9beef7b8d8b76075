// Package store persists mapping presets and sync history in one YAML file.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"sheetcal/internal/fsutil"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// MaxHistory is the number of history entries kept; older ones are dropped.
const MaxHistory = 200

// Preset is a saved header row and column mapping for one tab of one
// spreadsheet. It is applied on the next load of that tab.
type Preset struct {
	Key       string              `yaml:"key" json:"key"`
	HeaderRow int                 `yaml:"header_row" json:"header_row"`
	Mapping   model.ColumnMapping `yaml:"mapping" json:"mapping"`
	UpdatedAt time.Time           `yaml:"updated_at" json:"updated_at"`
}

// HistoryEntry records one sync run.
type HistoryEntry struct {
	ID       string    `yaml:"id" json:"id"`
	SourceID string    `yaml:"source_id" json:"source_id"`
	At       time.Time `yaml:"at" json:"at"`

	Events   int `yaml:"events" json:"events"`
	Created  int `yaml:"created" json:"created"`
	Updated  int `yaml:"updated" json:"updated"`
	Kept     int `yaml:"kept" json:"kept"`
	Failed   int `yaml:"failed" json:"failed"`
	Deleted  int `yaml:"deleted" json:"deleted"`
	Declined int `yaml:"declined" json:"declined"`

	// RowHashes fingerprints every synced event; see RowHash.
	RowHashes []string `yaml:"row_hashes,omitempty" json:"row_hashes,omitempty"`
	Error     string   `yaml:"error,omitempty" json:"error,omitempty"`
}

type state struct {
	Presets map[string]Preset `yaml:"presets"`
	History []HistoryEntry    `yaml:"history"`
}

// Store is safe for concurrent use. Every mutation is written through.
type Store struct {
	path string
	now  func() time.Time

	mu    sync.Mutex
	state state
}

// Open loads path, or starts empty if it does not exist yet.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	s := &Store{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("parse store %s: %w", path, err)
		}
	}
	if s.state.Presets == nil {
		s.state.Presets = map[string]Preset{}
	}
	return s, nil
}

// PresetKey identifies a tab of a spreadsheet.
func PresetKey(sheet, tab string) string {
	return sheet + "::" + tab
}

func (s *Store) Preset(key string) (Preset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.Presets[key]
	if ok {
		p.Mapping = p.Mapping.Clone()
	}
	return p, ok
}

func (s *Store) SavePreset(p Preset) error {
	if p.Key == "" {
		return errors.New("preset key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Mapping = p.Mapping.Clone()
	p.UpdatedAt = s.now().UTC()
	prev, had := s.state.Presets[p.Key]
	s.state.Presets[p.Key] = p
	if err := s.flush(); err != nil {
		if had {
			s.state.Presets[p.Key] = prev
		} else {
			delete(s.state.Presets, p.Key)
		}
		return err
	}
	appLog.Info("preset saved", "key", p.Key, "header_row", p.HeaderRow)
	return nil
}

func (s *Store) DeletePreset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Presets[key]; !ok {
		return nil
	}
	delete(s.state.Presets, key)
	return s.flush()
}

// AppendHistory records a sync of events from sourceID. syncErr, if set,
// is stored with the entry.
func (s *Store) AppendHistory(sourceID string, res model.SyncResult, events []model.NormalizedEvent, syncErr error) (HistoryEntry, error) {
	entry := HistoryEntry{
		ID:       uuid.NewString(),
		SourceID: sourceID,
		Events:   len(events),
		Created:  res.Created,
		Updated:  res.Updated,
		Kept:     res.Kept,
		Failed:   res.Failed,
		Deleted:  res.Deleted,
		Declined: res.Declined,
	}
	for _, e := range events {
		if e.Status == model.StatusSynced {
			entry.RowHashes = append(entry.RowHashes, RowHash(e))
		}
	}
	if syncErr != nil {
		entry.Error = syncErr.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.At = s.now().UTC()
	prev := s.state.History
	s.state.History = append(prev, entry)
	if over := len(s.state.History) - MaxHistory; over > 0 {
		s.state.History = s.state.History[over:]
	}
	if err := s.flush(); err != nil {
		s.state.History = prev
		return HistoryEntry{}, err
	}
	return entry, nil
}

// History returns entries newest first, optionally restricted to one
// source. limit <= 0 returns everything.
func (s *Store) History(sourceID string, limit int) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []HistoryEntry
	for _, h := range s.state.History {
		if sourceID == "" || h.SourceID == sourceID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RowHash fingerprints the fields a person would recognize an entry by:
// date, start, person, task and location.
func RowHash(e model.NormalizedEvent) string {
	key := e.Date + "|" + e.StartTime.Format(time.RFC3339) + "|" + e.Person + "|" + e.Task + "|" + e.Location
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Store) flush() error {
	data, err := yaml.Marshal(&s.state)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.path, data, 0o600)
}
