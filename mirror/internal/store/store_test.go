package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/cdnmirror/assetpath"
	"github.com/hazyhaar/cdnmirror/dbopen"
	"github.com/hazyhaar/cdnmirror/records"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func TestRunCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := &Run{
		ID:             "run-1",
		StartURL:       "https://shop.example.com/",
		MaxPages:       5,
		IncludeRecords: true,
		Pages:          4,
		Failed:         1,
		StartedAt:      1000,
		FinishedAt:     2000,
	}
	paths := []string{"/media/a.png", "/static/frontend/a.css", "/media/b.png"}
	if err := s.InsertRun(ctx, r, paths); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if r.AssetCount != 3 {
		t.Errorf("AssetCount: got %d", r.AssetCount)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("get: got nil")
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("round trip:\n got %+v\nwant %+v", got, r)
	}

	assets, err := s.RunAssets(ctx, "run-1", "")
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	want := []Asset{
		{"/media/a.png", "media"},
		{"/media/b.png", "media"},
		{"/static/frontend/a.css", "static"},
	}
	if !reflect.DeepEqual(assets, want) {
		t.Errorf("assets: got %v", assets)
	}

	static, _ := s.RunAssets(ctx, "run-1", "static")
	if len(static) != 1 || static[0].Path != "/static/frontend/a.css" {
		t.Errorf("static filter: got %v", static)
	}

	if err := s.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.GetRun(ctx, "run-1"); got != nil {
		t.Error("run still present after delete")
	}
	if assets, _ := s.RunAssets(ctx, "run-1", ""); len(assets) != 0 {
		t.Errorf("assets not cascaded: %v", assets)
	}
}

func TestGetRun_Missing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetRun(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("got %v, %v; want nil, nil", got, err)
	}
}

func TestInsertRun_DuplicateIDRollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.InsertRun(ctx, &Run{ID: "r"}, []string{"/media/a.png"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertRun(ctx, &Run{ID: "r"}, []string{"/media/z.png"}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	assets, _ := s.RunAssets(ctx, "r", "")
	if len(assets) != 1 || assets[0].Path != "/media/a.png" {
		t.Errorf("assets: got %v", assets)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.InsertRun(ctx, &Run{ID: id, StartedAt: int64(100 * (i + 1)), FinishedAt: 1}, nil); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("got %v", runIDs(runs))
	}
}

func runIDs(runs []*Run) []string {
	var out []string
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}

const catalogJSON = `{
  "products": [
    {"id": 2, "sku": "B", "image": "/b/b.jpg", "thumbnail": "no_selection"},
    {"id": 1, "sku": "A", "image": "/a/a.jpg", "small_image": "/a/a.jpg", "gallery": ["/a/g1.jpg", "/a/g2.jpg"]}
  ],
  "categories": [
    {"id": 5, "name": "Shoes", "image": "shoes.jpg"}
  ]
}`

func TestImportCatalog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	st, err := s.ImportCatalog(ctx, strings.NewReader(catalogJSON))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if st != (ImportStats{Products: 2, Gallery: 2, Categories: 1}) {
		t.Errorf("stats: %+v", st)
	}

	prods, err := s.Products(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(prods) != 2 || prods[0].ID != 1 {
		t.Fatalf("products: %+v", prods)
	}
	if want := map[string]string{"image": "/a/a.jpg", "small_image": "/a/a.jpg"}; !reflect.DeepEqual(prods[0].Fields, want) {
		t.Errorf("fields: got %v", prods[0].Fields)
	}

	gal, _ := s.Gallery(ctx, 1)
	if !reflect.DeepEqual(gal, []string{"/a/g1.jpg", "/a/g2.jpg"}) {
		t.Errorf("gallery: %v", gal)
	}

	// Re-import replaces the gallery rather than appending to it.
	_, err = s.ImportCatalog(ctx, strings.NewReader(`{"products":[{"id":1,"image":"/a/new.jpg","gallery":["/a/g3.jpg"]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	gal, _ = s.Gallery(ctx, 1)
	if !reflect.DeepEqual(gal, []string{"/a/g3.jpg"}) {
		t.Errorf("gallery after re-import: %v", gal)
	}

	prods, _ = s.Products(ctx, 0, 10)
	if prods[0].Fields["image"] != "/a/new.jpg" || prods[0].Fields["small_image"] != "" {
		t.Errorf("product after re-import: %v", prods[0].Fields)
	}
}

func TestImportCatalog_Invalid(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if _, err := s.ImportCatalog(ctx, strings.NewReader(`{"products":[`)); err == nil {
		t.Error("expected decode error")
	}
	_, err := s.ImportCatalog(ctx, strings.NewReader(`{"products":[{"id":1,"image":"/x.jpg"},{"id":0}]}`))
	if err == nil {
		t.Fatal("expected id error")
	}
	if prods, _ := s.Products(ctx, 0, 10); len(prods) != 0 {
		t.Errorf("partial import committed: %+v", prods)
	}
}

func TestStore_FeedsWalker(t *testing.T) {
	// WHAT: The store is a complete record source, gallery included.
	// WHY: Catalog discovery reads straight from the imported tables.
	s := testStore(t)
	ctx := context.Background()
	if _, err := s.ImportCatalog(ctx, strings.NewReader(catalogJSON)); err != nil {
		t.Fatal(err)
	}
	set := assetpath.NewSet()
	st := records.New(s, records.WithBatchSizes(1, 1)).Walk(ctx, set)
	if st.Products != 2 || st.Categories != 1 {
		t.Errorf("stats: %+v", st)
	}
	want := []string{
		"/media/catalog/category/shoes.jpg",
		"/media/catalog/product/a/a.jpg",
		"/media/catalog/product/a/g1.jpg",
		"/media/catalog/product/a/g2.jpg",
		"/media/catalog/product/b/b.jpg",
	}
	if got := set.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v", got)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cdnmirror.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.InsertRun(context.Background(), &Run{ID: "x"}, []string{"/media/a.png"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}
}
