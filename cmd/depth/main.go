// Command depth runs one deep-research session from the command line.
//
// Usage:
//
//	depth [-config depth.toml] [-html] "research question"
//
// Progress streams to stderr; the final report goes to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	depth "github.com/irfansofyana/depth"
	"github.com/irfansofyana/depth/internal/config"
	"github.com/irfansofyana/depth/observer"
	"github.com/irfansofyana/depth/provider/openaicompat"
	"github.com/irfansofyana/depth/store/sqlite"
	"github.com/irfansofyana/depth/tools/dbquery"
	"github.com/irfansofyana/depth/tools/document"
	"github.com/irfansofyana/depth/tools/search"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("DEPTH_CONFIG"), "path to depth.toml")
		asHTML     = flag.Bool("html", false, "render the report as HTML")
		verbose    = flag.Bool("v", false, "verbose logging to stderr")
	)
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: depth [-config depth.toml] [-html] \"research question\"")
		os.Exit(2)
	}

	if err := run(question, *configPath, *asHTML, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "depth:", err)
		os.Exit(1)
	}
}

func run(question, configPath string, asHTML, verbose bool) error {
	cfg := config.Load(configPath)
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("model api_key is not configured (set DEPTH_MODEL_API_KEY)")
	}
	if cfg.Search.BraveAPIKey == "" {
		return fmt.Errorf("search brave_api_key is not configured (set DEPTH_BRAVE_API_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Provider: OpenAI-compatible chat with retry on transient failures.
	var providerOpts []openaicompat.ProviderOption
	if cfg.Model.TokenLimit > 0 {
		providerOpts = append(providerOpts, openaicompat.WithTokenLimit(cfg.Model.TokenLimit))
	}
	var llm depth.Provider = openaicompat.NewProvider(
		cfg.Model.APIKey, cfg.Model.Model, cfg.Model.BaseURL, providerOpts...)
	llm = depth.WithRetry(llm, depth.RetryLogger(logger))

	// Observability is opt-in; spans and metrics go to whatever the standard
	// OTEL env vars point at.
	var tracer depth.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("init observer: %w", err)
		}
		defer shutdown(context.Background())
		llm = observer.WrapProvider(llm, cfg.Model.Model, inst)
		tracer = observer.NewTracer(inst)
	}

	// Tools. Web search is always on; database and document tools register
	// only when configured.
	searchTool := search.New(cfg.Search.BraveAPIKey, search.WithLogger(logger))
	registry := depth.NewRegistry(wrapTool(searchTool, inst))

	if cfg.Database.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connect research database: %w", err)
		}
		defer pool.Close()
		registry.Add(wrapTool(dbquery.New(pool, cfg.Database.Schema), inst))
	}
	if cfg.Documents.Root != "" {
		registry.Add(wrapTool(document.New(cfg.Documents.Root), inst))
	}

	// Report archive.
	store := sqlite.New(cfg.Archive.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init archive: %w", err)
	}

	opts := []depth.Option{
		depth.WithLogger(logger),
		depth.WithArchive(store),
		depth.WithBudget(depth.Budget{
			MaxResearcherIterations:       cfg.Budget.MaxResearcherIterations,
			MaxConcurrentResearchUnits:    cfg.Budget.MaxConcurrentUnits,
			MaxReactToolCalls:             cfg.Budget.MaxReactToolCalls,
			MaxTotalSearchesPerResearcher: cfg.Budget.MaxSearchesPerUnit,
			MaxSearchesPerIteration:       cfg.Budget.MaxSearchesPerStep,
			AllowClarification:            cfg.Budget.AllowClarification,
		}),
	}
	if tracer != nil {
		opts = append(opts, depth.WithTracer(tracer))
	}

	engine, err := depth.New(llm, registry, opts...)
	if err != nil {
		return err
	}

	events := make(chan depth.ProgressEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fmt.Fprintf(os.Stderr, "[%3d%%] %-14s %s\n", ev.Percent, ev.Stage, ev.Message)
		}
	}()

	result, err := engine.RunStream(ctx, depth.Request{Question: question}, events)
	<-done
	if err != nil {
		return err
	}

	if result.NeedsClarification {
		fmt.Fprintln(os.Stderr, "\nThe question needs clarification before research can start:")
		fmt.Fprintln(os.Stderr, result.ClarificationQuestion)
		return nil
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	if asHTML {
		html, err := depth.RenderHTML(result.Report)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		fmt.Fprintln(out, html)
	} else {
		fmt.Fprintln(out, result.Report)
	}

	fmt.Fprintf(os.Stderr, "\nsession %s: %d rounds, %d units, %d findings, %d in / %d out tokens, %s\n",
		result.SessionID, result.Iterations, result.UnitsUsed, len(result.Findings),
		result.Usage.InputTokens, result.Usage.OutputTokens, result.Duration.Round(time.Millisecond))
	return nil
}

// wrapTool instruments a tool when the observer is enabled.
func wrapTool(t depth.Tool, inst *observer.Instruments) depth.Tool {
	if inst == nil {
		return t
	}
	return observer.WrapTool(t, inst)
}
