package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photocull/internal/logging"
	"photocull/internal/workers"
)

const (
	// MarkerDir is the hidden per-directory state folder the analysis
	// process writes into. Scans skip directories with this prefix.
	MarkerDir = ".photocull"

	// DBFilename is the report database file name inside MarkerDir.
	DBFilename = "report.db"

	// SchemaVersion is the current report schema version.
	SchemaVersion = "4"

	defaultTimeout = 5 * time.Second
)

// DB wraps the per-directory analysis report database. The analysis process
// owns the write path; this package reads rows and patches exactly two
// fields in place (species on copy/paste, current_path on relocation).
type DB struct {
	db   *sql.DB
	path string
	root string
	mu   sync.Mutex
}

// DBPath returns the report database path for a photo directory.
func DBPath(dir string) string {
	return filepath.Join(dir, MarkerDir, DBFilename)
}

// FindRoot walks from dir upward and returns the closest ancestor (or dir
// itself) that carries a report database, or "" when none exists.
func FindRoot(dir string) string {
	cur := filepath.Clean(dir)
	for {
		if _, err := os.Stat(DBPath(cur)); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}

// OpenIfExists opens the report database under dir when it already exists.
// It returns (nil, nil) when there is no database; opening never creates one.
func OpenIfExists(ctx context.Context, dir string) (*DB, error) {
	dbPath := DBPath(dir)
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat report database: %w", err)
	}
	return open(ctx, dir, false)
}

// Create opens the report database under dir, creating the marker directory,
// the file and the schema when missing. Used by tooling and tests; the
// browser itself only ever opens existing databases.
func Create(ctx context.Context, dir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Join(dir, MarkerDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", MarkerDir, err)
	}
	return open(ctx, dir, true)
}

func open(ctx context.Context, dir string, create bool) (*DB, error) {
	dbPath := DBPath(dir)

	// busy_timeout prevents "database is locked" when the analysis process
	// still holds the file.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close report database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to report database: %w", err)
	}

	// Read-mostly: an I/O-sized handful of connections is plenty.
	db.SetMaxOpenConns(workers.ForIO(4))
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{db: db, path: dbPath, root: filepath.Clean(dir)}

	if create {
		if err := d.initialize(ctx); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				logging.Error("failed to close report database after init failure: %v", closeErr)
			}
			return nil, fmt.Errorf("failed to initialize report schema: %w", err)
		}
	}

	if err := d.migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close report database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate report schema: %w", err)
	}

	logging.Debug("Report database opened: %s", dbPath)
	return d, nil
}

// Root returns the photo directory the database belongs to.
func (d *DB) Root() string {
	return d.root
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		rating INTEGER DEFAULT 0,
		is_flying INTEGER DEFAULT 0,
		focus_status TEXT,
		sharpness REAL,
		aesthetic REAL,
		iso INTEGER,
		shutter_speed TEXT,
		aperture TEXT,
		focal_length REAL,
		camera_model TEXT,
		lens_model TEXT,
		gps_latitude REAL,
		gps_longitude REAL,
		title TEXT,
		caption TEXT,
		city TEXT,
		state_province TEXT,
		country TEXT,
		date_time_original TEXT,
		species TEXT,
		species_latin TEXT,
		original_path TEXT,
		current_path TEXT,
		preview_jpeg_path TEXT,
		created_at TEXT,
		updated_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_filename ON photos(filename);
	CREATE INDEX IF NOT EXISTS idx_photos_rating ON photos(rating);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		SchemaVersion)
	return err
}

// migrate applies additive column migrations based on the schema_version
// marker. Databases written by older analysis versions gain the newer
// columns as NULLs; data is never rewritten.
func (d *DB) migrate(ctx context.Context) error {
	version, err := d.Meta(ctx, "schema_version")
	if err != nil {
		return err
	}
	if version == "" {
		version = "1"
	}

	if version == "1" {
		logging.Info("Migrating report schema from v1 to v2")
		cols := []string{
			"iso INTEGER", "shutter_speed TEXT", "aperture TEXT",
			"focal_length REAL", "camera_model TEXT", "lens_model TEXT",
			"gps_latitude REAL", "gps_longitude REAL",
			"title TEXT", "caption TEXT",
			"city TEXT", "state_province TEXT", "country TEXT",
			"date_time_original TEXT",
		}
		if err := d.addColumns(ctx, cols); err != nil {
			return err
		}
		if err := d.SetMeta(ctx, "schema_version", "2"); err != nil {
			return err
		}
		version = "2"
	}

	if version == "2" {
		logging.Info("Migrating report schema from v2 to v3")
		cols := []string{"original_path TEXT", "current_path TEXT", "preview_jpeg_path TEXT"}
		if err := d.addColumns(ctx, cols); err != nil {
			return err
		}
		if err := d.SetMeta(ctx, "schema_version", "3"); err != nil {
			return err
		}
		version = "3"
	}

	if version == "3" {
		logging.Info("Migrating report schema from v3 to v4")
		cols := []string{"species TEXT", "species_latin TEXT"}
		if err := d.addColumns(ctx, cols); err != nil {
			return err
		}
		if err := d.SetMeta(ctx, "schema_version", "4"); err != nil {
			return err
		}
	}

	return nil
}

// addColumns issues ALTER TABLE ADD COLUMN for each definition, ignoring
// "duplicate column" errors so partially migrated databases converge.
func (d *DB) addColumns(ctx context.Context, defs []string) error {
	for _, def := range defs {
		_, err := d.db.ExecContext(ctx, "ALTER TABLE photos ADD COLUMN "+def)
		if err != nil && !strings.Contains(err.Error(), "duplicate column") {
			return fmt.Errorf("failed to add column %q: %w", def, err)
		}
	}
	return nil
}

// Meta returns the value for a meta key, or "" when absent.
func (d *DB) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a meta key.
func (d *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %q: %w", key, err)
	}
	return nil
}

const rowColumns = `filename, rating, is_flying, focus_status, sharpness, aesthetic,
	iso, shutter_speed, aperture, focal_length, camera_model, lens_model,
	gps_latitude, gps_longitude, title, caption, city, state_province, country,
	date_time_original, species, species_latin,
	original_path, current_path, preview_jpeg_path`

// AllRows returns every photo row ordered by filename.
func (d *DB) AllRows(ctx context.Context) ([]*Row, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM photos ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close photos cursor: %v", err)
		}
	}()

	var out []*Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRow returns the row for a filename stem, or nil when absent.
func (d *DB) GetRow(ctx context.Context, stem string) (*Row, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM photos WHERE filename = ?`, stem)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// InsertRow inserts or replaces a photo row. Used by tooling and tests; the
// browser never writes whole rows.
func (d *DB) InsertRow(ctx context.Context, r *Row) error {
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO photos (`+rowColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			rating = excluded.rating,
			is_flying = excluded.is_flying,
			focus_status = excluded.focus_status,
			sharpness = excluded.sharpness,
			aesthetic = excluded.aesthetic,
			iso = excluded.iso,
			shutter_speed = excluded.shutter_speed,
			aperture = excluded.aperture,
			focal_length = excluded.focal_length,
			camera_model = excluded.camera_model,
			lens_model = excluded.lens_model,
			gps_latitude = excluded.gps_latitude,
			gps_longitude = excluded.gps_longitude,
			title = excluded.title,
			caption = excluded.caption,
			city = excluded.city,
			state_province = excluded.state_province,
			country = excluded.country,
			date_time_original = excluded.date_time_original,
			species = excluded.species,
			species_latin = excluded.species_latin,
			original_path = excluded.original_path,
			current_path = excluded.current_path,
			preview_jpeg_path = excluded.preview_jpeg_path,
			updated_at = excluded.updated_at`,
		r.Filename, r.Rating, boolToInt(r.IsFlying), nullStr(r.FocusStatus),
		r.Sharpness, r.Aesthetic,
		r.ISO, nullStr(r.ShutterSpeed), nullStr(r.Aperture), r.FocalLength,
		nullStr(r.CameraModel), nullStr(r.LensModel),
		r.GPSLatitude, r.GPSLongitude,
		nullStr(r.Title), nullStr(r.Caption),
		nullStr(r.City), nullStr(r.StateProvince), nullStr(r.Country),
		nullStr(r.DateTimeOriginal), nullStr(r.Species), nullStr(r.SpeciesLatin),
		nullStr(r.OriginalPath), nullStr(r.CurrentPath), nullStr(r.PreviewJPEGPath),
		now, now)
	if err != nil {
		return fmt.Errorf("failed to insert row %q: %w", r.Filename, err)
	}
	return nil
}

// UpdateSpecies patches the species fields of a row in place. This is one of
// the two sanctioned write paths (user copy/paste of a species name).
func (d *DB) UpdateSpecies(ctx context.Context, stem, species, speciesLatin string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	_, err := d.db.ExecContext(ctx,
		`UPDATE photos SET species = ?, species_latin = ?, updated_at = ? WHERE filename = ?`,
		species, speciesLatin, now, stem)
	if err != nil {
		return fmt.Errorf("failed to update species for %q: %w", stem, err)
	}
	return nil
}

// UpdateCurrentPath patches the recorded relative current_path of a row in
// place. This is the second sanctioned write path (file found to have moved).
func (d *DB) UpdateCurrentPath(ctx context.Context, stem, currentPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	_, err := d.db.ExecContext(ctx,
		`UPDATE photos SET current_path = ?, updated_at = ? WHERE filename = ?`,
		currentPath, now, stem)
	if err != nil {
		return fmt.Errorf("failed to update current_path for %q: %w", stem, err)
	}
	return nil
}

// Stats holds aggregate counts over the report.
type Stats struct {
	Total    int
	Flying   int
	ByRating map[int]int
}

// Statistics returns aggregate counts over the photos table.
func (d *DB) Statistics(ctx context.Context) (*Stats, error) {
	s := &Stats{ByRating: make(map[int]int)}

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos`).Scan(&s.Total); err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos WHERE is_flying = 1`).Scan(&s.Flying); err != nil {
		return nil, fmt.Errorf("failed to count flying photos: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT rating, COUNT(*) FROM photos GROUP BY rating ORDER BY rating`)
	if err != nil {
		return nil, fmt.Errorf("failed to group ratings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close ratings cursor: %v", err)
		}
	}()
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, err
		}
		s.ByRating[rating] = count
	}
	return s, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
