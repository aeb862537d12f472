package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/bryanchriswhite/simplerecord/internal/api"
	"github.com/bryanchriswhite/simplerecord/internal/capture"
	"github.com/bryanchriswhite/simplerecord/internal/config"
	"github.com/bryanchriswhite/simplerecord/internal/display"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/output"
	"github.com/bryanchriswhite/simplerecord/internal/record"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/spf13/cobra"
)

// newOpeners builds the endpoint openers for a configuration, replaced in
// tests
var newOpeners = func(cfg *config.Config) record.Openers {
	return record.DefaultOpeners(
		capture.Options{Timeout: cfg.CaptureTimeout, FFmpegPath: cfg.FFmpegPath},
		output.Options{FFmpegPath: cfg.FFmpegPath},
		cfg.Display.Backend,
		display.Options{Title: cfg.Display.Title},
	)
}

// recordPlan is what one invocation will try
type recordPlan struct {
	sources  []string
	sinkURI  string
	fallback bool
}

func planRecord(args []string, cfg *config.Config) recordPlan {
	switch len(args) {
	case 0:
		return recordPlan{sources: cfg.FallbackSources, sinkURI: cfg.RecordURI, fallback: true}
	case 1:
		return recordPlan{sources: args[:1], sinkURI: cfg.RecordURI}
	default:
		return recordPlan{sources: args[:1], sinkURI: args[1]}
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg := configMgr.Get()
	plan := planRecord(args, cfg)
	out := cmd.OutOrStdout()

	log := logger.WithComponent("record")

	// Usage comes before any device is touched
	if plan.fallback {
		printUsage(out)
	}

	// Without arguments the exit status is always clean, setup failures
	// included
	fail := func(err error) error {
		if plan.fallback {
			log.Error().Err(err).Msg("Fallback run aborted")
			fmt.Fprintf(out, "Error: %v\n", err)
			return nil
		}
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fail(fmt.Errorf("invalid configuration: %w", err))
	}

	sinkFormat, err := video.ParsePixelFormat(cfg.SinkFormat)
	if err != nil {
		return fail(err)
	}

	session := record.NewSession(newOpeners(cfg), record.SessionConfig{
		SinkFormat: sinkFormat,
		HUD:        cfg.Display.HUD,
		Loop: record.Options{
			MaxFrames:         uint64(cfg.MaxFrames),
			ExitOnEndOfStream: cfg.ExitOnEOS,
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HTTPAddr != "" {
		server := api.NewServer(session, configMgr, api.Options{})
		if _, err := server.Start(cfg.HTTPAddr); err != nil {
			return fail(fmt.Errorf("failed to start status API: %w", err))
		}
		defer server.Close()
		session.SetFrameTap(server.PreviewTap())
	}

	if !plan.fallback {
		return session.Run(ctx, plan.sources[0], plan.sinkURI)
	}

	outcome := record.RunCandidates(ctx, plan.sources, plan.sinkURI,
		func(ctx context.Context, sourceURI, sinkURI string) error {
			fmt.Fprintf(out, "Trying: %s\n", sourceURI)
			return session.Run(ctx, sourceURI, sinkURI)
		})

	// The fallback run always exits cleanly; the outcome is only logged
	ev := log.Info()
	if outcome.Err != nil {
		ev = log.Warn().Err(outcome.Err)
	}
	ev.Str("opened", outcome.Opened).Int("attempts", len(outcome.Attempts)).Msg("Fallback run finished")
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage  : simplerecord [video-uri] [output-uri]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Where video-uri describes a stream or file resource, e.g.")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range capture.Schemes() {
		fmt.Fprintf(tw, "\t%s\t%s\n", s.Example, s.Description)
	}
	tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "and output-uri describes where frames are recorded, e.g.")
	for _, s := range output.Schemes() {
		fmt.Fprintf(tw, "\t%s\t%s\n", s.Example, s.Description)
	}
	tw.Flush()
	fmt.Fprintln(w)
}
