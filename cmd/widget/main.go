package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sumire/calwidget/internal/domain"
	"github.com/sumire/calwidget/internal/widget"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(os.Args[1:]); err != nil {
		slog.Error("widget error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "watch"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "watch":
		return watch(ctx, args)
	case "add":
		return add(ctx, args)
	default:
		return fmt.Errorf("unknown command %q (want watch or add)", cmd)
	}
}

type common struct {
	server   string
	timeout  time.Duration
	timezone string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.server, "server", envOr("CALWIDGET_SERVER", "http://localhost:9876"), "backend base URL")
	fs.DurationVar(&c.timeout, "timeout", widget.DefaultTimeout, "per-request timeout")
	fs.StringVar(&c.timezone, "timezone", envOr("DISPLAY_TIMEZONE", "Asia/Kolkata"), "display timezone")
}

func watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var opts common
	opts.register(fs)
	interval := fs.Duration("interval", widget.DefaultInterval, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	client := widget.NewClient(opts.server, opts.timeout)
	render := func(records []domain.EventRecord, err error) {
		printAgenda(os.Stdout, client, records, err, loc)
	}

	poller := widget.NewPoller(client, render, widget.PollerConfig{
		Interval: *interval,
		Timeout:  opts.timeout,
		Location: loc,
	})
	return poller.Start(ctx)
}

func printAgenda(w io.Writer, client *widget.Client, records []domain.EventRecord, err error, loc *time.Location) {
	fmt.Fprintf(w, "\n== %s ==\n", time.Now().In(loc).Format("Mon, 02 Jan 2006 15:04"))
	switch {
	case widget.IsNeedsReauth(err):
		fmt.Fprintf(w, "Calendar access needed: open %s\n", client.AuthorizeURL())
	case err != nil:
		fmt.Fprintf(w, "Could not load events: %v\n", err)
	default:
		if err := widget.RenderAgenda(w, records, loc); err != nil {
			slog.Warn("render agenda", "error", err)
		}
	}
}

func add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var opts common
	opts.register(fs)
	summary := fs.String("summary", "", "event title")
	start := fs.String("start", "", "start, local wall-clock time (2006-01-02T15:04:05)")
	end := fs.String("end", "", "end, local wall-clock time (2006-01-02T15:04:05)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *summary == "" || *start == "" || *end == "" {
		return errors.New("add requires -summary, -start and -end")
	}

	client := widget.NewClient(opts.server, opts.timeout)
	id, err := client.AddEvent(ctx, domain.EventInput{
		Summary:  *summary,
		Start:    *start,
		End:      *end,
		TimeZone: opts.timezone,
	})
	if widget.IsNeedsReauth(err) {
		return fmt.Errorf("calendar access needed: open %s", client.AuthorizeURL())
	}
	if err != nil {
		return err
	}

	fmt.Printf("Event created: %s\n", id)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
