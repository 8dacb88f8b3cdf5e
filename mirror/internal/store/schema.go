package store

// Schema contains the complete DDL for the cdnmirror tables.
const Schema = `
-- Discovery runs: one row per Analyze call
CREATE TABLE IF NOT EXISTS discovery_runs (
    id              TEXT PRIMARY KEY,
    start_url       TEXT NOT NULL DEFAULT '',
    max_pages       INTEGER NOT NULL DEFAULT 0,
    include_records INTEGER NOT NULL DEFAULT 0,
    quick           INTEGER NOT NULL DEFAULT 0,
    pages           INTEGER NOT NULL DEFAULT 0,
    failed          INTEGER NOT NULL DEFAULT 0,
    blocked         INTEGER NOT NULL DEFAULT 0,
    products        INTEGER NOT NULL DEFAULT 0,
    categories      INTEGER NOT NULL DEFAULT 0,
    asset_count     INTEGER NOT NULL DEFAULT 0,
    error           TEXT,
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON discovery_runs(started_at DESC);

-- Discovered assets: the sorted path list of a run
CREATE TABLE IF NOT EXISTS discovered_assets (
    run_id TEXT NOT NULL,
    path   TEXT NOT NULL,
    kind   TEXT NOT NULL,
    PRIMARY KEY (run_id, path),
    FOREIGN KEY (run_id) REFERENCES discovery_runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_assets_kind ON discovered_assets(run_id, kind);

-- Catalog products: image attributes as stored by the storefront
CREATE TABLE IF NOT EXISTS catalog_products (
    id           INTEGER PRIMARY KEY,
    sku          TEXT NOT NULL DEFAULT '',
    image        TEXT NOT NULL DEFAULT '',
    small_image  TEXT NOT NULL DEFAULT '',
    thumbnail    TEXT NOT NULL DEFAULT '',
    swatch_image TEXT NOT NULL DEFAULT ''
);

-- Product gallery entries in display order
CREATE TABLE IF NOT EXISTS catalog_product_gallery (
    product_id INTEGER NOT NULL,
    position   INTEGER NOT NULL,
    value      TEXT NOT NULL,
    PRIMARY KEY (product_id, position),
    FOREIGN KEY (product_id) REFERENCES catalog_products(id) ON DELETE CASCADE
);

-- Catalog categories
CREATE TABLE IF NOT EXISTS catalog_categories (
    id        INTEGER PRIMARY KEY,
    name      TEXT NOT NULL DEFAULT '',
    image     TEXT NOT NULL DEFAULT '',
    thumbnail TEXT NOT NULL DEFAULT ''
);
`
