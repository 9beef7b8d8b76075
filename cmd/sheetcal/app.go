package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sheetcal/internal/calendar"
	"sheetcal/internal/config"
	"sheetcal/internal/metrics"
	"sheetcal/internal/reconcile"
	"sheetcal/internal/sheets"
	"sheetcal/internal/store"
	"sheetcal/internal/syncer"
)

type app struct {
	cfg      *config.Config
	svc      *syncer.Service
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	set, err := syncer.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	reader, err := newReader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cal, err := newCalendar(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)

	return &app{
		cfg:      cfg,
		svc:      syncer.NewService(set, reader, cal, st, m),
		registry: reg,
	}, nil
}

func googleAuth(cfg *config.Config) calendar.GoogleAuth {
	return calendar.GoogleAuth{
		CredentialsFile: cfg.Calendar.CredentialsFile,
		TokenEnv:        cfg.Calendar.TokenEnv,
	}
}

func newReader(ctx context.Context, cfg *config.Config) (sheets.Router, error) {
	router := sheets.Router{
		sheets.KindXLSX:   sheets.XLSX{},
		sheets.KindCSV:    sheets.CSV{},
		sheets.KindCSVURL: sheets.NewCSVURL(filepath.Join(filepath.Dir(cfg.StatePath), "csv-cache")),
	}
	for _, src := range cfg.Sources {
		if src.Kind != string(sheets.KindGSheets) {
			continue
		}
		opts, err := googleAuth(cfg).ClientOptions()
		if err != nil {
			return nil, fmt.Errorf("google sheets source %s: %w", src.ID, err)
		}
		gs, err := sheets.NewGSheets(ctx, opts...)
		if err != nil {
			return nil, err
		}
		router[sheets.KindGSheets] = gs
		break
	}
	return router, nil
}

func newCalendar(ctx context.Context, cfg *config.Config) (reconcile.Calendar, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	switch cfg.Calendar.Backend {
	case "google":
		opts, err := googleAuth(cfg).ClientOptions()
		if err != nil {
			return nil, err
		}
		return calendar.NewGoogle(ctx, cfg.Calendar.CalendarID, loc, opts...)
	case "relay":
		return calendar.NewRelay(cfg.Calendar.RelayURL, cfg.Calendar.RelayCalendarName), nil
	default:
		return calendar.NewICSFile(cfg.Calendar.ICSPath, loc), nil
	}
}
