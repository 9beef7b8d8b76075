// Package syncer ties sources, the normalization pipeline, the reconciler
// and the state store together.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sheetcal/internal/config"
	"sheetcal/internal/layout"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/metrics"
	"sheetcal/internal/model"
	"sheetcal/internal/normalize"
	"sheetcal/internal/reconcile"
	"sheetcal/internal/sheets"
	"sheetcal/internal/store"
	"sheetcal/internal/timeparse"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	// ErrBusy is returned when a sync is already running.
	ErrBusy = errors.New("a sync is already running")
)

// Settings are the pipeline and reconcile knobs shared by every source.
type Settings struct {
	Sources []config.SourceConfig

	Profile            layout.Profile
	Fallbacks          normalize.Fallbacks
	TaskFallbackColumn string
	// Parser defaults to timeparse.New().
	Parser *timeparse.Parser

	Strategy reconcile.Strategy
	TimeZone string
}

// SettingsFromConfig derives Settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Settings{}, err
	}
	slots, err := cfg.SlotTable()
	if err != nil {
		return Settings{}, err
	}
	strategy, err := reconcile.ParseStrategy(cfg.Calendar.Strategy)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Sources: cfg.Sources,
		Profile: layout.TwoTier(cfg.ExcludedGroups...),
		Fallbacks: normalize.Fallbacks{
			Person:      cfg.Fallbacks.Person,
			Task:        cfg.Fallbacks.Task,
			Location:    cfg.Fallbacks.Location,
			GroupPerson: cfg.Fallbacks.GroupPerson,
		},
		TaskFallbackColumn: cfg.TaskFallbackColumn,
		Parser:             timeparse.New(timeparse.WithLocation(loc), timeparse.WithSlots(slots)),
		Strategy:           strategy,
		TimeZone:           cfg.Timezone,
	}, nil
}

// Service runs previews and syncs for configured sources.
type Service struct {
	set     Settings
	reader  sheets.Reader
	cal     reconcile.Calendar
	store   *store.Store
	metrics *metrics.Metrics

	loads  singleflight.Group
	syncMu sync.Mutex
}

// NewService wires a service. st and m may be nil.
func NewService(set Settings, reader sheets.Reader, cal reconcile.Calendar, st *store.Store, m *metrics.Metrics) *Service {
	if set.Parser == nil {
		set.Parser = timeparse.New()
	}
	if set.Strategy == "" {
		set.Strategy = reconcile.StrategyKey
	}
	return &Service{set: set, reader: reader, cal: cal, store: st, metrics: m}
}

func (s *Service) Sources() []config.SourceConfig {
	return append([]config.SourceConfig(nil), s.set.Sources...)
}

func (s *Service) Source(id string) (config.SourceConfig, error) {
	for _, src := range s.set.Sources {
		if src.ID == id {
			return src, nil
		}
	}
	return config.SourceConfig{}, fmt.Errorf("%w %q", ErrUnknownSource, id)
}

// Locator maps a configured source to a sheets locator.
func Locator(src config.SourceConfig) sheets.Locator {
	return sheets.Locator{
		Kind:          sheets.Kind(src.Kind),
		Path:          src.Path,
		URL:           src.URL,
		SpreadsheetID: src.SpreadsheetID,
		Tab:           src.Tab,
		Range:         src.Range,
	}
}

// sheetIdentity names the spreadsheet behind src, independent of the tab.
func sheetIdentity(src config.SourceConfig) string {
	switch {
	case src.SpreadsheetID != "":
		return src.SpreadsheetID
	case sheets.ExtractSpreadsheetID(src.URL) != "" && src.Kind == string(sheets.KindGSheets):
		return sheets.ExtractSpreadsheetID(src.URL)
	case src.Path != "":
		return src.Path
	default:
		return src.URL
	}
}

// PresetKey is the store key of src's preset.
func PresetKey(src config.SourceConfig) string {
	return store.PresetKey(sheetIdentity(src), src.Tab)
}

// LoadGrid fetches the grid of src. Concurrent loads of the same locator
// share one fetch.
func (s *Service) LoadGrid(ctx context.Context, src config.SourceConfig) (model.Grid, error) {
	loc := Locator(src)
	v, err, shared := s.loads.Do(loc.Key(), func() (any, error) {
		start := time.Now()
		grid, err := s.reader.FetchGrid(ctx, loc)
		s.metrics.ObserveFetch(src.Kind, time.Since(start), err)
		return grid, err
	})
	if err != nil {
		return model.Grid{}, fmt.Errorf("load source %s: %w", src.ID, err)
	}
	if shared {
		appLog.Debug("grid load shared", "source", src.ID)
	}
	return v.(model.Grid), nil
}

// overrides layers explicit overrides over the stored preset over the
// source config.
func (s *Service) overrides(src config.SourceConfig, ov normalize.Overrides) normalize.Overrides {
	out := ov
	var preset store.Preset
	var hasPreset bool
	if s.store != nil {
		preset, hasPreset = s.store.Preset(PresetKey(src))
	}

	if out.HeaderRow == nil {
		switch {
		case hasPreset:
			row := preset.HeaderRow
			out.HeaderRow = &row
		case src.HeaderRow != nil:
			row := *src.HeaderRow
			out.HeaderRow = &row
		}
	}
	if len(out.Mapping) == 0 && hasPreset {
		out.Mapping = preset.Mapping
	}
	if out.Person == "" {
		out.Person = src.PersonFilter
	}
	return out
}

func (s *Service) pipeline(src config.SourceConfig) *normalize.Pipeline {
	return normalize.NewPipeline(s.set.Profile, normalize.Options{
		SheetID:            sheetIdentity(src),
		Tab:                src.Tab,
		Fallbacks:          s.set.Fallbacks,
		TaskFallbackColumn: s.set.TaskFallbackColumn,
		Parser:             s.set.Parser,
	})
}

// Preview loads a source and runs the pipeline without touching the
// calendar.
func (s *Service) Preview(ctx context.Context, sourceID string, ov normalize.Overrides) (normalize.Result, error) {
	src, err := s.Source(sourceID)
	if err != nil {
		return normalize.Result{}, err
	}
	grid, err := s.LoadGrid(ctx, src)
	if err != nil {
		return normalize.Result{}, err
	}
	return s.pipeline(src).Run(grid, s.overrides(src, ov)), nil
}

// Sync previews a source and reconciles the events into the calendar.
// Only one sync runs at a time; a second caller gets ErrBusy.
func (s *Service) Sync(ctx context.Context, sourceID string, ov normalize.Overrides, confirm reconcile.Confirmer) (model.SyncResult, error) {
	if !s.syncMu.TryLock() {
		return model.SyncResult{}, ErrBusy
	}
	defer s.syncMu.Unlock()

	res, err := s.Preview(ctx, sourceID, ov)
	if err != nil {
		s.metrics.ObserveSync(sourceID, model.SyncResult{}, err)
		return model.SyncResult{}, err
	}

	opts := []reconcile.Option{
		reconcile.WithStrategy(s.set.Strategy),
		reconcile.WithTimeZone(s.set.TimeZone),
	}
	if confirm != nil {
		opts = append(opts, reconcile.WithConfirmer(confirm))
	}
	if s.metrics != nil {
		opts = append(opts, reconcile.WithObserver(s.metrics))
	}
	rec := reconcile.New(s.metrics.Instrument(s.cal), opts...)

	out, err := rec.Reconcile(ctx, res.Events)
	for _, w := range res.Warnings {
		out.Log("warning: " + w)
	}

	if s.store != nil {
		if _, herr := s.store.AppendHistory(sourceID, out, res.Events, err); herr != nil {
			appLog.Error("history append failed", herr, "source", sourceID)
		}
	}
	s.metrics.ObserveSync(sourceID, out, err)
	appLog.Info("sync finished", "source", sourceID, "events", len(res.Events), "created", out.Created, "failed", out.Failed)
	return out, err
}

// SavePreset stores the header row and mapping for the source's tab.
func (s *Service) SavePreset(sourceID string, headerRow int, mapping model.ColumnMapping) (store.Preset, error) {
	if s.store == nil {
		return store.Preset{}, errors.New("no state store configured")
	}
	src, err := s.Source(sourceID)
	if err != nil {
		return store.Preset{}, err
	}
	if headerRow < 0 {
		return store.Preset{}, fmt.Errorf("header row %d is negative", headerRow)
	}
	p := store.Preset{Key: PresetKey(src), HeaderRow: headerRow, Mapping: mapping}
	if err := s.store.SavePreset(p); err != nil {
		return store.Preset{}, err
	}
	p, _ = s.store.Preset(p.Key)
	return p, nil
}

// Preset returns the stored preset of a source.
func (s *Service) Preset(sourceID string) (store.Preset, bool, error) {
	src, err := s.Source(sourceID)
	if err != nil {
		return store.Preset{}, false, err
	}
	if s.store == nil {
		return store.Preset{}, false, nil
	}
	p, ok := s.store.Preset(PresetKey(src))
	return p, ok, nil
}

// History returns sync history, newest first.
func (s *Service) History(sourceID string, limit int) []store.HistoryEntry {
	if s.store == nil {
		return nil
	}
	return s.store.History(sourceID, limit)
}
