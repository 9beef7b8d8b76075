package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sheetcal/internal/config"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/normalize"
	"sheetcal/internal/sheets"
	"sheetcal/internal/syncer"
	"sheetcal/internal/web"
)

func newDetectCommand(opts *rootOptions) *cobra.Command {
	var (
		sourceID string
		file     string
		tab      string
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Show the detected header layout and column roles of a sheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if file != "" {
				src, err := fileSource(file, tab)
				if err != nil {
					return err
				}
				cfg.Sources = []config.SourceConfig{src}
				sourceID = src.ID
			}
			if sourceID == "" {
				return fmt.Errorf("either --source or --file is required")
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			res, err := a.svc.Preview(cmd.Context(), sourceID, normalize.Overrides{})
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), map[string]any{
				"resolution": res.Resolution,
				"schema":     res.Schema,
				"mapping":    res.Mapping,
				"events":     len(res.Events),
				"warnings":   res.Warnings,
			})
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Configured source id")
	cmd.Flags().StringVar(&file, "file", "", "Local .xlsx or .csv file instead of a configured source")
	cmd.Flags().StringVar(&tab, "tab", "", "Worksheet name for .xlsx files")
	return cmd
}

// fileSource builds an ad hoc source for a local file.
func fileSource(path, tab string) (config.SourceConfig, error) {
	var kind sheets.Kind
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		kind = sheets.KindXLSX
	case ".csv", ".txt":
		kind = sheets.KindCSV
	default:
		return config.SourceConfig{}, fmt.Errorf("cannot tell sheet kind of %s", path)
	}
	return config.SourceConfig{ID: "file", Name: filepath.Base(path), Kind: string(kind), Path: path, Tab: tab}, nil
}

func newPreviewCommand(opts *rootOptions) *cobra.Command {
	var (
		sourceID  string
		headerRow int
		person    string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Normalize a source and print the events without syncing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			ov := normalize.Overrides{Person: person}
			if cmd.Flags().Changed("header-row") {
				ov.HeaderRow = &headerRow
			}
			res, err := a.svc.Preview(cmd.Context(), sourceID, ov)
			if err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), res)
			}
			printEvents(cmd.OutOrStdout(), res.Events)
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Configured source id")
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "Force the header row (zero-based)")
	cmd.Flags().StringVar(&person, "person", "", "Only events whose person contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func printEvents(w io.Writer, events []model.NormalizedEvent) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSTART\tEND\tPERSON\tTASK\tLOCATION")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Date, e.StartTime.Format("15:04"), e.EndTime.Format("15:04"), e.Person, e.Task, e.Location)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d events\n", len(events))
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var (
		sourceID string
		yes      bool
		no       bool
		person   string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a source into the configured calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes && no {
				return fmt.Errorf("--yes and --no are mutually exclusive")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			policy := cfg.Calendar.ConflictPolicy
			switch {
			case yes:
				policy = "approve"
			case no:
				policy = "decline"
			}
			confirm, err := confirmerFor(policy)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			res, err := a.svc.Sync(cmd.Context(), sourceID, normalize.Overrides{Person: person}, confirm)
			out := cmd.OutOrStdout()
			for _, line := range res.Logs {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "created=%d updated=%d kept=%d deleted=%d failed=%d declined=%d\n",
				res.Created, res.Updated, res.Kept, res.Deleted, res.Failed, res.Declined)
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d events failed", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Configured source id")
	cmd.Flags().BoolVar(&yes, "yes", false, "Approve every replacement without asking")
	cmd.Flags().BoolVar(&no, "no", false, "Decline every replacement without asking")
	cmd.Flags().StringVar(&person, "person", "", "Only sync events whose person contains this text")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}

			if cfg.SyncCron != "" {
				// Nobody answers prompts in the background.
				policy := cfg.Calendar.ConflictPolicy
				if policy == "prompt" || policy == "" {
					policy = "decline"
				}
				confirm, err := confirmerFor(policy)
				if err != nil {
					return err
				}
				sched, err := syncer.NewScheduler(a.svc, cfg.SyncCron, confirm)
				if err != nil {
					return err
				}
				sched.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					sched.Stop(stopCtx)
				}()
			} else {
				appLog.Info("scheduled sync disabled")
			}

			return web.NewServer(cfg, a.svc, a.registry).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
