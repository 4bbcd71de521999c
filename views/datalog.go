package views

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"imu-fusion/models"
)

// Datalog stores a session's inputs and outputs in an sqlite file, one
// row per sample in the "samples" and "outputs" tables, plus the engine
// settings as key/value rows in "settings".
//
// Rows are inserted inside an open transaction that Flush commits, so the
// per-sample cost is a prepared statement execution.
type Datalog struct {
	mu   sync.Mutex
	path string
	db   *sql.DB

	tx      *sql.Tx
	samples *sql.Stmt
	outputs *sql.Stmt
	rows    uint64
}

// OpenDatalog creates (or truncates) the tables in the sqlite file at path.
func OpenDatalog(path string) (*Datalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("datalog open %s: %w", path, err)
	}
	// one writer; keeps the open transaction and ad hoc statements on the
	// same connection
	db.SetMaxOpenConns(1)
	d := &Datalog{path: path, db: db}

	stmts := []string{
		"DROP TABLE IF EXISTS settings",
		"DROP TABLE IF EXISTS samples",
		"DROP TABLE IF EXISTS outputs",
		"CREATE TABLE settings (key TEXT NOT NULL PRIMARY KEY, value TEXT)",
		makeTable("samples", models.Sample{}.CSVHeader()),
		makeTable("outputs", models.Output{}.CSVHeader()),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("datalog %q: %w", s, err)
		}
	}
	return d, nil
}

// makeTable builds a CREATE TABLE with one NUMERIC column per header
// entry, keyed by the sample's arrival index.
func makeTable(tbl string, cols []string) string {
	fields := make([]string, 0, len(cols)+1)
	fields = append(fields, "id INTEGER NOT NULL PRIMARY KEY")
	for _, c := range cols {
		if c == "index" {
			continue
		}
		fields = append(fields, c+" NUMERIC")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", tbl, strings.Join(fields, ", "))
}

func insertStmt(tbl string, cols []string) string {
	keys := []string{"id"}
	for _, c := range cols {
		if c != "index" {
			keys = append(keys, c)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s)", tbl, strings.Join(keys, ","),
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","))
}

// WriteSettings records the engine configuration of the session.
func (d *Datalog) WriteSettings(s models.Settings) error {
	kv := [][2]string{
		{"sample_rate", fmt.Sprint(s.SampleRate)},
		{"convention", s.Convention.String()},
		{"gain", fmt.Sprint(s.Gain)},
		{"gyroscope_range", fmt.Sprint(s.GyroscopeRange)},
		{"acceleration_rejection", fmt.Sprint(s.AccelerationRejection)},
		{"magnetic_rejection", fmt.Sprint(s.MagneticRejection)},
		{"recovery_trigger_period", fmt.Sprint(s.RecoveryTriggerPeriod)},
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.commitLocked(); err != nil {
		return err
	}
	for _, p := range kv {
		if _, err := d.db.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES(?, ?)", p[0], p[1]); err != nil {
			return fmt.Errorf("datalog settings: %w", err)
		}
	}
	return nil
}

// Write inserts one sample and its output.
func (d *Datalog) Write(r *models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tx == nil {
		if err := d.begin(); err != nil {
			return err
		}
	}
	id := r.Output.Index
	if _, err := d.samples.Exec(args(id, r.Sample.CSVRow())...); err != nil {
		return fmt.Errorf("datalog insert sample %d: %w", id, err)
	}
	// drop the index column, it is the row id
	if _, err := d.outputs.Exec(args(id, r.Output.CSVRow()[1:])...); err != nil {
		return fmt.Errorf("datalog insert output %d: %w", id, err)
	}
	d.rows++
	return nil
}

func args(id int, row []string) []any {
	out := make([]any, 0, len(row)+1)
	out = append(out, id)
	for _, v := range row {
		out = append(out, v)
	}
	return out
}

func (d *Datalog) begin() error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("datalog begin: %w", err)
	}
	samples, err := tx.Prepare(insertStmt("samples", models.Sample{}.CSVHeader()))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("datalog prepare: %w", err)
	}
	outputs, err := tx.Prepare(insertStmt("outputs", models.Output{}.CSVHeader()))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("datalog prepare: %w", err)
	}
	d.tx, d.samples, d.outputs = tx, samples, outputs
	return nil
}

// Flush commits the rows written since the last Flush.
func (d *Datalog) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commitLocked()
}

func (d *Datalog) commitLocked() error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Commit()
	d.tx, d.samples, d.outputs = nil, nil, nil
	if err != nil {
		return fmt.Errorf("datalog commit: %w", err)
	}
	return nil
}

// Close commits pending rows and closes the database.
func (d *Datalog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.commitLocked()
	if cerr := d.db.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("datalog close: %w", cerr)
	}
	return err
}

// Rows returns the number of samples written.
func (d *Datalog) Rows() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows
}

// DB exposes the underlying handle for read-only queries. Call Flush
// first; the handle has a single connection.
func (d *Datalog) DB() *sql.DB { return d.db }

func (d *Datalog) Path() string { return d.path }
