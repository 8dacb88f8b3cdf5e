package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/cdnmirror/fetch"
	"github.com/hazyhaar/cdnmirror/records"
)

// site is a fixture storefront that counts page hits.
type site struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits []string
}

func (s *site) hit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *site) pageHits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, h := range s.hits {
		if h != "/robots.txt" {
			out = append(out, h)
		}
	}
	return out
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{}
	r := chi.NewRouter()
	r.Use(s.hit)
	for p, body := range pages {
		r.Get(p, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		})
	}
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

func newCrawler(opts ...Option) *Crawler {
	return New(fetch.New(fetch.Config{}), opts...)
}

func TestAnalyze_PageBudget(t *testing.T) {
	// WHAT: A start page with 10 links and maxPages=3 visits exactly 3 pages.
	// WHY: The page budget is the only bound on crawl cost.
	var links strings.Builder
	for i := range 10 {
		fmt.Fprintf(&links, `<a href="/page/%d">p%d</a>`, i, i)
	}
	pages := map[string]string{"/": `<html><body>` + links.String() + `</body></html>`}
	for i := range 10 {
		pages[fmt.Sprintf("/page/%d", i)] = `<html><body>leaf</body></html>`
	}
	s := newSite(t, pages)

	_, st := newCrawler().AnalyzeStats(context.Background(), s.srv.URL, 3, false)
	if got := s.pageHits(); len(got) != 3 {
		t.Fatalf("hits: got %v, want 3 pages", got)
	}
	if st.Pages != 3 {
		t.Errorf("stats pages: got %d", st.Pages)
	}
	if want := []string{"/", "/page/0", "/page/1"}; !reflect.DeepEqual(s.pageHits(), want) {
		t.Errorf("order: got %v, want %v", s.pageHits(), want)
	}
}

func TestAnalyze_CyclicGraph(t *testing.T) {
	all := `<a href="/">h</a><a href="/a">a</a><a href="/b">b</a><a href="/a#top">a again</a>`
	s := newSite(t, map[string]string{"/": all, "/a": all, "/b": all})

	_, st := newCrawler().AnalyzeStats(context.Background(), s.srv.URL+"/", 50, false)
	if got := s.pageHits(); len(got) != 3 {
		t.Errorf("hits: got %v, want each page once", got)
	}
	if st.Pages != 3 {
		t.Errorf("pages: got %d", st.Pages)
	}
}

const homePage = `<html><head>
<link rel="stylesheet" href="/static/frontend/t/en_US/css/styles.css">
<script src="/static/frontend/t/en_US/requirejs/require.js"></script>
</head><body>
<img src="/media/logo.png">
<img src="https://other.example.org/media/ext.png">
<a href="/page/a">a</a>
</body></html>`

const pageA = `<html><body><div style="background-image:url(/media/wysiwyg/hero.jpg)"></div><a href="/">home</a></body></html>`

func TestAnalyze_SortedAndDeterministic(t *testing.T) {
	s := newSite(t, map[string]string{"/": homePage, "/page/a": pageA})
	c := newCrawler()

	first := c.Analyze(context.Background(), s.srv.URL, 5, false)
	second := c.Analyze(context.Background(), s.srv.URL, 5, false)

	want := []string{
		"/media/logo.png",
		"/media/wysiwyg/hero.jpg",
		"/static/frontend/t/en_US/css/styles.css",
		"/static/frontend/t/en_US/requirejs/require.js",
	}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("got %v, want %v", first, want)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ: %v vs %v", first, second)
	}
}

func TestAnalyze_FailedPagesSkipped(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":      `<a href="/missing">m</a><a href="/empty">e</a><a href="/ok">ok</a>`,
		"/empty": ``,
		"/ok":    `<img src="/media/ok.png">`,
	})
	paths, st := newCrawler().AnalyzeStats(context.Background(), s.srv.URL, 10, false)
	if st.Failed != 2 {
		t.Errorf("failed: got %d, want 2", st.Failed)
	}
	if !reflect.DeepEqual(paths, []string{"/media/ok.png"}) {
		t.Errorf("paths: %v", paths)
	}
}

func TestAnalyze_EmptyStartUsesSiteBase(t *testing.T) {
	s := newSite(t, map[string]string{"/": `<img src="/media/a.png">`})
	paths := newCrawler(WithSiteBase(s.srv.URL)).Analyze(context.Background(), "", 1, false)
	if !reflect.DeepEqual(paths, []string{"/media/a.png"}) {
		t.Errorf("got %v", paths)
	}
}

func TestAnalyze_Robots(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":           `<a href="/private/x">p</a><a href="/public">q</a>`,
		"/private/x":  `<img src="/media/secret.png">`,
		"/public":     `<img src="/media/public.png">`,
		"/robots.txt": "User-agent: *\nDisallow: /private/\n",
	})
	paths, st := newCrawler(WithRobots("cdnmirror")).AnalyzeStats(context.Background(), s.srv.URL, 10, false)
	if st.Blocked != 1 {
		t.Errorf("blocked: got %d", st.Blocked)
	}
	if !reflect.DeepEqual(paths, []string{"/media/public.png"}) {
		t.Errorf("paths: %v", paths)
	}
	for _, h := range s.pageHits() {
		if strings.HasPrefix(h, "/private/") {
			t.Errorf("disallowed page fetched: %s", h)
		}
	}
}

type oneProduct struct{}

func (oneProduct) Products(_ context.Context, offset, _ int) ([]records.Record, error) {
	if offset > 0 {
		return nil, nil
	}
	return []records.Record{{ID: 1, Fields: map[string]string{"image": "/x/y/xy.jpg"}}}, nil
}

func (oneProduct) Categories(context.Context, int, int) ([]records.Record, error) { return nil, nil }

func TestAnalyze_IncludeRecords(t *testing.T) {
	s := newSite(t, map[string]string{"/": `<img src="/media/a.png">`})
	c := newCrawler(WithRecords(records.New(oneProduct{})))

	with := c.Analyze(context.Background(), s.srv.URL, 1, true)
	if !reflect.DeepEqual(with, []string{"/media/a.png", "/media/catalog/product/x/y/xy.jpg"}) {
		t.Errorf("with records: %v", with)
	}
	without := c.Analyze(context.Background(), s.srv.URL, 1, false)
	if !reflect.DeepEqual(without, []string{"/media/a.png"}) {
		t.Errorf("without records: %v", without)
	}
}

func TestAnalyze_Canceled(t *testing.T) {
	s := newSite(t, map[string]string{"/": `<img src="/media/a.png">`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if paths := newCrawler().Analyze(ctx, s.srv.URL, 5, false); len(paths) != 0 {
		t.Errorf("got %v", paths)
	}
	if len(s.pageHits()) != 0 {
		t.Error("no page should be fetched")
	}
}

func TestAnalyze_RateLimited(t *testing.T) {
	s := newSite(t, map[string]string{"/": `<a href="/a">a</a>`, "/a": `<img src="/media/a.png">`})
	paths := newCrawler(WithRateLimit(1000, 1)).Analyze(context.Background(), s.srv.URL, 5, false)
	if !reflect.DeepEqual(paths, []string{"/media/a.png"}) {
		t.Errorf("got %v", paths)
	}
}

func TestLinks(t *testing.T) {
	body := []byte(`<html><body>
<a href="/about">about</a>
<a href="contact">relative</a>
<a href="/catalog/product/view/id/7">product</a>
<a href="https://shop.example.com/catalog/category/view/id/3#top">category</a>
<a href="https://other.example.org/x">other host</a>
<a href="/static/frontend/a.css">asset</a>
<a href="/media/a.png">media</a>
<a href="javascript:void(0)">js</a>
<a href="MAILTO:someone@example.com">mail</a>
<a href="tel:123">tel</a>
<a href="#section">anchor</a>
<a href="/about#team">about again</a>
<a>no href</a>
</body></html>`)
	got := newCrawler().Links("https://shop.example.com/company/index", body)
	want := []string{
		"https://shop.example.com/catalog/product/view/id/7",
		"https://shop.example.com/catalog/category/view/id/3",
		"https://shop.example.com/about",
		"https://shop.example.com/company/contact",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v\nwant %v", got, want)
	}
}

func TestLinks_CustomPriority(t *testing.T) {
	body := []byte(`<a href="/a">a</a><a href="/shoes.html">p</a>`)
	got := newCrawler(WithPriority(".html")).Links("https://shop.example.com/", body)
	want := []string{"https://shop.example.com/shoes.html", "https://shop.example.com/a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v", got)
	}
}
