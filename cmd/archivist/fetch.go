package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/mohammad-safakhou/archivist/config"
	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/mohammad-safakhou/archivist/internal/output"
	"github.com/mohammad-safakhou/archivist/internal/pager"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/internal/runtime"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/mohammad-safakhou/archivist/models"
	"github.com/spf13/cobra"
)

const defaultClockTime = "12:00 AM"

var fetchLog = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)

type fetchOptions struct {
	startTime string
	endTime   string
	file      string
	pages     int
	verbose   bool
	format    string
	cap       int
	store     bool
	index     bool
	force     bool
}

type fetchRequest struct {
	URL   string
	Range models.TimeRange
}

var clockLayouts = []string{
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04:05 PM",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// parseDateTime joins a date and a clock time the way the archive tool always has. A date
// that already carries its own time is accepted as is when clock is the default.
func parseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	joined := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, joined, loc); err == nil {
			return t, nil
		}
	}
	if t, err := dateparse.ParseIn(joined, loc); err == nil {
		return t, nil
	}
	if clock == defaultClockTime {
		if t, err := dateparse.ParseIn(strings.TrimSpace(date), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start/end date or time")
}

func parseFetchRequest(args []string, opts fetchOptions, loc *time.Location) (fetchRequest, error) {
	if len(args) != 3 {
		return fetchRequest{}, fmt.Errorf("invalid command: expected url, startdate and enddate")
	}
	if err := config.ValidateURL(args[0]); err != nil {
		return fetchRequest{}, fmt.Errorf("invalid URL: %w", err)
	}
	start, err := parseDateTime(args[1], opts.startTime, loc)
	if err != nil {
		return fetchRequest{}, err
	}
	end, err := parseDateTime(args[2], opts.endTime, loc)
	if err != nil {
		return fetchRequest{}, err
	}
	if opts.pages < 0 {
		return fetchRequest{}, fmt.Errorf("pages must be a valid positive number")
	}
	r := models.TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return fetchRequest{}, err
	}
	return fetchRequest{URL: strings.TrimSpace(args[0]), Range: r}, nil
}

// confirmOverwrite asks before replacing an existing file. Anything but y/Y declines.
func confirmOverwrite(in io.Reader, out io.Writer, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("invalid filename: %w", err)
	}
	fmt.Fprintf(out, "The file %s already exists.\n", path)
	fmt.Fprint(out, "Do you want to overwrite it? (Y/N): ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y"), nil
}

const banner = "=============================================="

// traceObserver prints the query-by-query trace of verbose mode.
func traceObserver(out io.Writer, layout string, loc *time.Location, limit int) retrieval.Observer {
	return func(ev retrieval.QueryEvent) {
		fmt.Fprintf(out, "Query request: StartDate: %s  EndDate: %s\n",
			ev.Range.Start.In(loc).Format(layout), ev.Range.End.In(loc).Format(layout))
		switch ev.Outcome {
		case retrieval.OutcomeOverflow:
			fmt.Fprintf(out, "Query result > %d records. Reduce timespan to %s\n", limit, retrieval.StepLabel(ev.NextWindow))
		case retrieval.OutcomeWindowExhausted:
			fmt.Fprintf(out, "***ERROR - Query result > %d records and minimum timespan has been reached.\n", limit)
		}
	}
}

func spanDays(d time.Duration) string {
	return strconv.FormatFloat(d.Hours()/24, 'f', -1, 64)
}

func fetchCMD(cfgPath *string) *cobra.Command {
	var opts fetchOptions
	var fetch = &cobra.Command{
		Use:   "fetch <url> <startdate> <enddate>",
		Short: "Retrieve every message of a date range from the archive",
		Long: `Retrieve every message between startdate and enddate from the archive at url.

The archive silently truncates large answers, so the range is walked in sub-ranges that
shrink until each answer is known to be complete. The command fails rather than print a
listing that may be missing records.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			return runFetch(cmd, cfg, args, opts)
		},
	}
	f := fetch.Flags()
	f.StringVar(&opts.startTime, "start-time", defaultClockTime, "start time of the range")
	f.StringVar(&opts.endTime, "end-time", defaultClockTime, "end time of the range")
	f.StringVarP(&opts.file, "file", "f", "", "save the messages to this file")
	f.IntVarP(&opts.pages, "pages", "p", 0, "messages per screen page (0 shows all)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "show remote query details")
	f.StringVar(&opts.format, "format", "", "output format: text, json or yaml (default from config)")
	f.IntVar(&opts.cap, "cap", 0, "records per answer at which the archive truncates (default from config)")
	f.BoolVar(&opts.store, "store", false, "persist records and the session to postgres")
	f.BoolVar(&opts.index, "index", false, "add records to the full-text index")
	f.BoolVar(&opts.force, "force", false, "overwrite an existing file without asking")
	return fetch
}

func runFetch(cmd *cobra.Command, cfg *config.Config, args []string, opts fetchOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	loc := cfg.Archive.LoadLocation()

	req, err := parseFetchRequest(args, opts, loc)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(firstNonEmpty(opts.format, cfg.Output.Format))
	if err != nil {
		return err
	}
	if opts.file != "" && !opts.force {
		ok, err := confirmOverwrite(cmd.InOrStdin(), out, opts.file)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	tel, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "archivist-fetch"})
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background())

	src, _, cleanup, err := buildSource(ctx, cfg, req.URL)
	if err != nil {
		return err
	}
	defer cleanup()

	limit := cfg.Archive.Cap
	if opts.cap > 0 {
		limit = opts.cap
	}
	walkerOpts := []retrieval.Option{retrieval.WithCap(limit), retrieval.WithTracer(tracer)}
	if opts.verbose {
		walkerOpts = append(walkerOpts, retrieval.WithObserver(traceObserver(out, cfg.Archive.DateLayout, loc, limit)))
		fmt.Fprintln(out, banner)
		fmt.Fprintf(out, "Begin remote query to %s  TimeSpan=%s days\n", req.URL, spanDays(req.Range.Duration()))
	}
	walker := retrieval.NewWalker(src, walkerOpts...)

	var st *store.Store
	sessionID := ""
	if opts.store {
		dsn, err := runtime.BuildPostgresDSN(cfg)
		if err != nil {
			return err
		}
		if st, err = store.NewWithDSN(ctx, dsn); err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer st.Close()
		sessionID = uuid.NewString()
		if err := st.CreateSession(ctx, store.Session{ID: sessionID, Source: req.URL, Range: req.Range}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		ctx = retrieval.ContextWithSessionID(ctx, sessionID)
	}

	rep, runErr := walker.Run(ctx, req.Range)
	if st != nil {
		if runErr == nil {
			if err := st.UpsertRecords(ctx, req.URL, rep.Records); err != nil {
				runErr = fmt.Errorf("store records: %w", err)
			}
		}
		queries, shrinks, window, count := 0, 0, time.Duration(0), 0
		if rep != nil {
			queries, shrinks, window, count = rep.Queries, rep.Shrinks, rep.Window, len(rep.Records)
		}
		if err := st.FinishSession(context.WithoutCancel(ctx), sessionID, queries, shrinks, window, count, runErr); err != nil {
			fetchLog.Printf("finish session %s: %v", sessionID, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if opts.verbose {
		fmt.Fprintf(out, "Remote query to %s completed successfully\n", req.URL)
		fmt.Fprintln(out, banner)
	}

	if opts.index {
		idx, err := index.Open(cfg.Index.Path)
		if err != nil {
			return err
		}
		err = idx.Add(rep.Records)
		_ = idx.Close()
		if err != nil {
			return fmt.Errorf("index records: %w", err)
		}
	}

	if opts.file != "" {
		if err := output.WriteFile(opts.file, format, rep.Records); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d messages saved to %s\n", len(rep.Records), opts.file)
		if !cmd.Flags().Changed("pages") {
			return nil
		}
	}
	return display(cmd, format, rep.Records, pageSize(cmd, opts, cfg))
}

func pageSize(cmd *cobra.Command, opts fetchOptions, cfg *config.Config) int {
	if cmd.Flags().Changed("pages") {
		return opts.pages
	}
	return cfg.Output.PageSize
}

func display(cmd *cobra.Command, format output.Format, records []models.Record, size int) error {
	if format != output.FormatText {
		return output.Write(cmd.OutOrStdout(), format, records)
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = output.TextLine(r)
	}
	_, err := pager.New(cmd.OutOrStdout(), cmd.InOrStdin(), size).Print(lines)
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
