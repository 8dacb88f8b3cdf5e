// Package mirror wires discovery, rewriting and run history into one
// facade driven by a Config.
//
//	m, err := mirror.New(cfg, logger)
//	defer m.Close()
//	rep, err := m.Analyze(ctx, "", 0, true)   // crawl + catalog, persisted
//	res := m.Rewrite(html)                   // asset URLs on the CDN
//
// Discovery results are stored as runs in SQLite and can be listed later.
// Rewriting reads the Provider on every call, so settings changes apply to
// the next document.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/cdnmirror/assetpath"
	"github.com/hazyhaar/cdnmirror/crawl"
	"github.com/hazyhaar/cdnmirror/dbopen"
	"github.com/hazyhaar/cdnmirror/extract"
	"github.com/hazyhaar/cdnmirror/fetch"
	"github.com/hazyhaar/cdnmirror/horosafe"
	"github.com/hazyhaar/cdnmirror/idgen"
	"github.com/hazyhaar/cdnmirror/mirror/internal/store"
	"github.com/hazyhaar/cdnmirror/records"
	"github.com/hazyhaar/cdnmirror/rewrite"
	"github.com/hazyhaar/cdnmirror/sqltrace"
)

// QuickProductLimit bounds the catalog fallback of QuickAnalyze.
const QuickProductLimit = 20

// Persisted types.
type (
	Run         = store.Run
	Asset       = store.Asset
	ImportStats = store.ImportStats
)

// Report is the outcome of one discovery.
type Report struct {
	RunID    string        `json:"run_id"`
	StartURL string        `json:"start_url"`
	Paths    []string      `json:"paths"`
	Stats    crawl.Stats   `json:"stats"`
	Duration time.Duration `json:"duration_ns"`
}

// Mirror is the cdnmirror facade.
type Mirror struct {
	config    *Config
	provider  Provider
	store     *store.Store
	fetcher   crawl.Fetcher
	renderer  *fetch.Renderer
	source    records.Source
	extractor *extract.Extractor
	crawler   *crawl.Crawler
	newID     idgen.Generator
	logger    *slog.Logger
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithProvider replaces the Config as settings provider.
func WithProvider(p Provider) Option {
	return func(m *Mirror) { m.provider = p }
}

// WithFetcher replaces the HTTP fetcher built from the crawl settings.
func WithFetcher(f crawl.Fetcher) Option {
	return func(m *Mirror) { m.fetcher = f }
}

// WithRecordSource replaces the catalog tables as record source.
func WithRecordSource(src records.Source) Option {
	return func(m *Mirror) { m.source = src }
}

// WithIDGenerator sets the run ID generator. Default: UUIDv7 with a
// "run_" prefix.
func WithIDGenerator(g idgen.Generator) Option {
	return func(m *Mirror) { m.newID = g }
}

// New creates a Mirror. It opens the SQLite database at cfg.DBPath.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Mirror, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mirror{
		config:   cfg,
		provider: cfg,
		newID:    idgen.Prefixed("run_", idgen.Default),
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}

	var dbOpts []dbopen.Option
	if cfg.TraceSQL {
		sqltrace.SetLogger(logger)
		dbOpts = append(dbOpts, dbopen.WithDriver(sqltrace.DriverName))
	}
	s, err := store.Open(cfg.DBPath, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: open store: %w", err)
	}
	m.store = s
	if m.source == nil {
		m.source = s
	}

	if m.fetcher == nil {
		m.fetcher = m.buildFetcher()
	}

	m.extractor = extract.New(extract.WithLogger(logger))
	walker := records.New(m.source,
		records.WithBatchSizes(cfg.Records.ProductBatch, cfg.Records.CategoryBatch),
		records.WithSiteBase(cfg.Site.BaseURL),
		records.WithLogger(logger),
	)
	copts := []crawl.Option{
		crawl.WithSiteBase(cfg.Site.BaseURL),
		crawl.WithExtractor(m.extractor),
		crawl.WithRecords(walker),
		crawl.WithRateLimit(cfg.Crawl.RateLimit, cfg.Crawl.RateBurst),
		crawl.WithLogger(logger),
	}
	if cfg.Crawl.RespectRobots {
		copts = append(copts, crawl.WithRobots(cfg.Crawl.UserAgent))
	}
	if len(cfg.Crawl.Priority) > 0 {
		copts = append(copts, crawl.WithPriority(cfg.Crawl.Priority...))
	}
	m.crawler = crawl.New(m.fetcher, copts...)
	return m, nil
}

func (m *Mirror) buildFetcher() crawl.Fetcher {
	cc := m.config.Crawl
	if cc.Render {
		m.renderer = fetch.NewRenderer(fetch.RenderConfig{
			RemoteURL: cc.RemoteBrowser,
			Timeout:   cc.Timeout,
			Logger:    m.logger,
		})
		return m.renderer
	}
	fc := fetch.Config{
		Timeout:            cc.Timeout,
		MaxBytes:           cc.MaxBytes,
		MaxRedirects:       cc.MaxRedirects,
		UserAgent:          cc.UserAgent,
		InsecureSkipVerify: !cc.VerifyTLS,
		Logger:             m.logger,
	}
	if cc.BlockPrivate {
		fc.URLValidator = horosafe.ValidateURL
	}
	return fetch.New(fc)
}

// Close releases the browser, if any, and the database.
func (m *Mirror) Close() error {
	if m.renderer != nil {
		if err := m.renderer.Close(); err != nil {
			m.logger.Warn("mirror: close renderer", "error", err)
		}
	}
	return m.store.Close()
}

// Analyze crawls from startURL (the site base when empty), optionally walks
// the catalog, and persists the result as a run. maxPages <= 0 uses the
// configured page budget.
func (m *Mirror) Analyze(ctx context.Context, startURL string, maxPages int, includeRecords bool) (*Report, error) {
	if !m.provider.Enabled() {
		return nil, ErrDisabled
	}
	if startURL == "" {
		startURL = m.config.Site.BaseURL
	}
	if startURL == "" {
		return nil, ErrNoStartURL
	}
	if maxPages <= 0 {
		maxPages = m.config.Crawl.MaxPages
	}

	started := time.Now()
	paths, st := m.crawler.AnalyzeStats(ctx, startURL, maxPages, includeRecords)
	rep := &Report{
		RunID:    m.newID(),
		StartURL: startURL,
		Paths:    paths,
		Stats:    st,
		Duration: time.Since(started),
	}

	run := &store.Run{
		ID:             rep.RunID,
		StartURL:       startURL,
		MaxPages:       maxPages,
		IncludeRecords: includeRecords,
		Pages:          st.Pages,
		Failed:         st.Failed,
		Blocked:        st.Blocked,
		Products:       st.Records.Products,
		Categories:     st.Records.Categories,
		StartedAt:      started.UnixMilli(),
	}
	if err := ctx.Err(); err != nil {
		run.Error = err.Error()
	}
	// A cancelled crawl is still recorded with what it found.
	if err := m.store.InsertRun(context.WithoutCancel(ctx), run, paths); err != nil {
		return rep, fmt.Errorf("mirror: save run: %w", err)
	}
	m.logger.Info("mirror: analysis saved", "run", rep.RunID, "assets", len(paths), "duration", rep.Duration)
	return rep, nil
}

// QuickAnalyze extracts the assets of one page only. When the page yields
// nothing, the images of the first catalog products are used instead.
func (m *Mirror) QuickAnalyze(ctx context.Context, storeURL string) (*Report, error) {
	if !m.provider.Enabled() {
		return nil, ErrDisabled
	}
	if storeURL == "" {
		storeURL = m.config.Site.BaseURL
	}
	if storeURL == "" {
		return nil, ErrNoStartURL
	}

	started := time.Now()
	body, status := m.fetcher.Get(ctx, storeURL)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s (status %d)", ErrFetchFailed, storeURL, status)
	}
	set := assetpath.NewSet()
	set.AddAll(m.extractor.Extract(string(body), storeURL))
	st := crawl.Stats{Pages: 1}

	if set.Len() == 0 {
		m.logger.Info("mirror: no assets on page, trying product images", "url", storeURL)
		st.Records.Products = m.productImages(ctx, set)
	}
	if set.Len() == 0 {
		return nil, ErrNoAssets
	}

	paths := set.Sorted()
	st.Assets = len(paths)
	rep := &Report{RunID: m.newID(), StartURL: storeURL, Paths: paths, Stats: st, Duration: time.Since(started)}
	run := &store.Run{
		ID:        rep.RunID,
		StartURL:  storeURL,
		MaxPages:  1,
		Quick:     true,
		Pages:     1,
		Products:  st.Records.Products,
		StartedAt: started.UnixMilli(),
	}
	if err := m.store.InsertRun(ctx, run, paths); err != nil {
		return rep, fmt.Errorf("mirror: save run: %w", err)
	}
	return rep, nil
}

// productImages adds the main, small and thumbnail images of the first
// QuickProductLimit products and returns how many products were read.
func (m *Mirror) productImages(ctx context.Context, set *assetpath.Set) int {
	recs, err := m.source.Products(ctx, 0, QuickProductLimit)
	if err != nil {
		m.logger.Error("mirror: product images", "error", err)
		return 0
	}
	for _, r := range recs {
		for _, f := range []string{"image", "small_image", "thumbnail"} {
			p := records.ResolveValue(r.Fields[f], records.ProductMediaDir)
			if assetpath.Classify(p).Kind == assetpath.Media {
				set.Add(p)
			}
		}
	}
	return len(recs)
}

// Rewrite points the asset references of doc at the CDN. The document is
// returned unchanged when the integration is off or no base is set.
func (m *Mirror) Rewrite(doc string) rewrite.Result {
	if !m.provider.Enabled() {
		return rewrite.Result{HTML: doc, Replaced: map[string]string{}}
	}
	cfg := m.settings()
	base := m.provider.CDNBaseURL()
	if base == "" {
		m.logger.Warn("mirror: rewrite skipped", "error", ErrNoCDNBase)
	}
	var critical []string
	if len(cfg.CriticalFiles) > 0 {
		critical = cfg.CriticalFiles
	}
	res := rewrite.Rewrite(doc, rewrite.Options{
		CDNBaseURL:        base,
		SiteBaseURL:       cfg.Site.BaseURL,
		SecureSiteBaseURL: cfg.Site.SecureBaseURL,
		CriticalFiles:     critical,
		CustomURLs:        m.provider.CustomURLs(),
		Logger:            m.logger,
	})
	if m.provider.Debug() {
		m.logger.Info("mirror: rewrite", "count", res.Count, "replaced", len(res.Replaced), "skipped", res.Skipped)
	}
	return res
}

// settings returns the provider's full Config when it carries one, so
// reloaded site bases and critical files apply to the next rewrite.
func (m *Mirror) settings() *Config {
	if cp, ok := m.provider.(interface{ Config() *Config }); ok {
		if c := cp.Config(); c != nil {
			return c
		}
	}
	return m.config
}

// ExtractAssets returns the sorted distinct asset paths referenced by doc.
func (m *Mirror) ExtractAssets(doc string) []string {
	set := assetpath.NewSet()
	set.AddAll(m.extractor.Extract(doc, m.config.Site.BaseURL))
	return set.Sorted()
}

// RewriteRequireConfig points the paths block of a requirejs-config.js
// file at the CDN.
func (m *Mirror) RewriteRequireConfig(content string) (string, int, error) {
	base := m.provider.CDNBaseURL()
	if base == "" {
		return content, 0, ErrNoCDNBase
	}
	out, n := rewrite.RewriteRequireConfig(content, base)
	return out, n, nil
}

// LocalPath resolves an asset path to its file under the configured roots.
func (m *Mirror) LocalPath(p string) (string, error) {
	return assetpath.LocalPath(p, m.config.Roots)
}

// PlanItem describes one asset to mirror: where it lives locally and where
// it goes in the mirror repository.
type PlanItem struct {
	Path   string `json:"path"`
	Local  string `json:"local,omitempty"`
	Remote string `json:"remote,omitempty"`
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

// Plan resolves each path for upload. Nothing is uploaded.
func (m *Mirror) Plan(paths []string) []PlanItem {
	base := m.provider.CDNBaseURL()
	out := make([]PlanItem, 0, len(paths))
	for _, p := range paths {
		it := PlanItem{Path: p}
		local, err := m.LocalPath(p)
		if err != nil {
			it.Error = err.Error()
			out = append(out, it)
			continue
		}
		it.Local = local
		c := assetpath.Classify(p)
		it.Remote = c.Path[len(c.Kind.Prefix()):]
		if base != "" {
			it.Remote = assetpath.ToMirrorURL(c.Path, base)
		}
		if fi, err := os.Stat(local); err == nil && !fi.IsDir() {
			it.Exists = true
		}
		out = append(out, it)
	}
	return out
}

// Runs lists recent discovery runs, newest first.
func (m *Mirror) Runs(ctx context.Context, limit int) ([]*Run, error) {
	return m.store.ListRuns(ctx, limit)
}

// Run returns one run, or nil when it does not exist.
func (m *Mirror) Run(ctx context.Context, id string) (*Run, error) {
	return m.store.GetRun(ctx, id)
}

// RunAssets returns the paths of a run, optionally filtered by kind
// ("static" or "media").
func (m *Mirror) RunAssets(ctx context.Context, id, kind string) ([]Asset, error) {
	return m.store.RunAssets(ctx, id, kind)
}

// ImportCatalog loads catalog records from JSON into the record tables.
func (m *Mirror) ImportCatalog(ctx context.Context, r io.Reader) (ImportStats, error) {
	st, err := m.store.ImportCatalog(ctx, r)
	if err != nil {
		return st, fmt.Errorf("mirror: import catalog: %w", err)
	}
	m.logger.Info("mirror: catalog imported", "products", st.Products, "gallery", st.Gallery, "categories", st.Categories)
	return st, nil
}
