// Command cdnmirror discovers a storefront's static and media assets and
// rewrites documents so those assets load from a CDN mirror.
//
// Usage:
//
//	cdnmirror --config cdnmirror.yaml --analyze https://shop.example.com/ --records
//	cdnmirror --site https://shop.example.com/ --quick ""
//	cdnmirror --config cdnmirror.yaml --rewrite page.html > page.cdn.html
//	cdnmirror --config cdnmirror.yaml --require-config requirejs-config.js
//	cdnmirror --db cdnmirror.db --runs
//	cdnmirror --db cdnmirror.db --run-assets run_0190... --kind media
//	cdnmirror --config cdnmirror.yaml --plan run_0190...
//	cdnmirror --db cdnmirror.db --import-catalog catalog.json
//
// File arguments accept "-" for stdin. Results go to stdout as indented
// JSON; rewritten documents are written as is.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/hazyhaar/cdnmirror/mirror"
)

type options struct {
	configPath    string
	dbPath        string
	site          string
	cdn           string
	analyze       string
	analyzeSet    bool
	maxPages      int
	records       bool
	quick         string
	quickSet      bool
	extract       string
	rewrite       string
	requireConfig string
	runs          bool
	limit         int
	runAssets     string
	kind          string
	plan          string
	importCatalog string
	traceSQL      bool
}

func main() {
	var o options
	flag.StringVarP(&o.configPath, "config", "c", "", "path to cdnmirror.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&o.site, "site", "", "storefront base URL (overrides config)")
	flag.StringVar(&o.cdn, "cdn", "", "CDN base URL (overrides config)")
	flag.StringVar(&o.analyze, "analyze", "", "crawl from URL (empty: site base) and save a run")
	flag.IntVar(&o.maxPages, "max-pages", 0, "page budget for --analyze (0: config)")
	flag.BoolVar(&o.records, "records", false, "include catalog records in --analyze")
	flag.StringVar(&o.quick, "quick", "", "extract assets from one page (empty: site base)")
	flag.StringVar(&o.extract, "extract", "", "print the asset paths referenced by a file")
	flag.StringVar(&o.rewrite, "rewrite", "", "rewrite a document and print it")
	flag.StringVar(&o.requireConfig, "require-config", "", "rewrite a requirejs-config.js file and print it")
	flag.BoolVar(&o.runs, "runs", false, "list saved discovery runs")
	flag.IntVar(&o.limit, "limit", 20, "max runs listed")
	flag.StringVar(&o.runAssets, "run-assets", "", "print the assets of a run")
	flag.StringVar(&o.kind, "kind", "", "filter --run-assets by kind: static or media")
	flag.StringVar(&o.plan, "plan", "", "resolve local files and mirror URLs for a run")
	flag.StringVar(&o.importCatalog, "import-catalog", "", "load catalog records from a JSON file")
	flag.BoolVar(&o.traceSQL, "trace-sql", false, "log every SQL statement")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()
	o.analyzeSet = flag.CommandLine.Changed("analyze")
	o.quickSet = flag.CommandLine.Changed("quick")

	level := new(slog.LevelVar)
	switch *logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, level, o); err != nil {
		logger.Error("cdnmirror: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}
	if cfg.Debug() {
		level.Set(slog.LevelDebug)
	}

	m, err := mirror.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer m.Close()

	switch {
	case o.importCatalog != "":
		f, err := openInput(o.importCatalog)
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := m.ImportCatalog(ctx, f)
		if err != nil {
			return err
		}
		return printJSON(st)

	case o.analyzeSet:
		rep, err := m.Analyze(ctx, o.analyze, o.maxPages, o.records || cfg.Crawl.IncludeRecords)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		return printJSON(rep)

	case o.quickSet:
		rep, err := m.QuickAnalyze(ctx, o.quick)
		if err != nil {
			return fmt.Errorf("quick: %w", err)
		}
		return printJSON(rep)

	case o.extract != "":
		doc, err := readInput(o.extract)
		if err != nil {
			return err
		}
		return printJSON(m.ExtractAssets(doc))

	case o.rewrite != "":
		doc, err := readInput(o.rewrite)
		if err != nil {
			return err
		}
		res := m.Rewrite(doc)
		logger.Info("cdnmirror: rewritten", "count", res.Count, "skipped", len(res.Skipped))
		_, err = io.WriteString(os.Stdout, res.HTML)
		return err

	case o.requireConfig != "":
		content, err := readInput(o.requireConfig)
		if err != nil {
			return err
		}
		out, n, err := m.RewriteRequireConfig(content)
		if err != nil {
			return err
		}
		logger.Info("cdnmirror: require config rewritten", "count", n)
		_, err = io.WriteString(os.Stdout, out)
		return err

	case o.runs:
		runs, err := m.Runs(ctx, o.limit)
		if err != nil {
			return err
		}
		return printJSON(runs)

	case o.runAssets != "":
		assets, err := m.RunAssets(ctx, o.runAssets, o.kind)
		if err != nil {
			return err
		}
		return printJSON(assets)

	case o.plan != "":
		assets, err := m.RunAssets(ctx, o.plan, o.kind)
		if err != nil {
			return err
		}
		paths := make([]string, len(assets))
		for i, a := range assets {
			paths[i] = a.Path
		}
		return printJSON(m.Plan(paths))
	}

	flag.Usage()
	return errors.New("no action given")
}

func resolveConfig(o options) (*mirror.Config, error) {
	cfg := &mirror.Config{Enable: true}
	if o.configPath != "" {
		c, err := mirror.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.site != "" {
		cfg.Site.BaseURL = o.site
		cfg.Site.SecureBaseURL = o.site
	}
	if o.cdn != "" {
		cfg.CDN.BaseURL = o.cdn
	}
	if o.traceSQL {
		cfg.TraceSQL = true
	}
	return cfg, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func readInput(path string) (string, error) {
	f, err := openInput(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(b), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
