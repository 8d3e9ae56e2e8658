// Package sqlstore persists provenance records and run ledger entries in a
// SQL database through gorm. SQLite (pure Go, no cgo) and PostgreSQL are
// supported.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/vk/benchgrid/internal/ledger"
	"github.com/vk/benchgrid/internal/provenance"
	"github.com/vk/benchgrid/internal/run"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type recordRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	Name          string `gorm:"size:255;index"`
	Kind          string `gorm:"size:32"`
	Path          string
	Cwd           string
	Command       string
	Documentation string
	Inputs        string // JSON array of IDs
	RecipeHash    string `gorm:"size:64"`
	Status        string `gorm:"size:16"`
	Fingerprint   string
	DeclaredAt    time.Time `gorm:"index"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (recordRow) TableName() string { return "provenance_records" }

type runRow struct {
	RunID      string `gorm:"primaryKey;size:36"`
	Campaign   string `gorm:"size:255;index"`
	Params     string // JSON
	OutputDir  string
	Status     string `gorm:"size:16;index"`
	ExitCode   int
	Output     string
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
}

func (runRow) TableName() string { return "run_entries" }

// Store implements provenance.Backend and ledger.Backend on top of gorm.
type Store struct {
	db *gorm.DB
}

var (
	_ provenance.Backend = (*Store)(nil)
	_ ledger.Backend     = (*Store)(nil)
)

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}

// OpenSQLite opens (creating if needed) a SQLite database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database from being split across connections.
	sqlDB.SetMaxOpenConns(1)
	return New(db)
}

// OpenPostgres connects to PostgreSQL with a libpq-style DSN or URL.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return New(db)
}

// New wraps an open gorm connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&recordRow{}, &runRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) PutRecord(ctx context.Context, rec *provenance.Record) error {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return err
	}
	row := recordRow{
		ID:            rec.ID.String(),
		Name:          rec.Name,
		Kind:          rec.Kind,
		Path:          rec.Path,
		Cwd:           rec.Cwd,
		Command:       rec.Command,
		Documentation: rec.Documentation,
		Inputs:        string(inputs),
		RecipeHash:    rec.RecipeHash,
		Status:        string(rec.Status),
		Fingerprint:   rec.Fingerprint,
		DeclaredAt:    rec.DeclaredAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
}

func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*provenance.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", provenance.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.record()
}

func (s *Store) ListRecords(ctx context.Context) ([]*provenance.Record, error) {
	var rows []recordRow
	if err := s.db.WithContext(ctx).Order("declared_at, name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*provenance.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (row recordRow) record() (*provenance.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt provenance record id %q: %w", row.ID, err)
	}
	status, err := provenance.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	var inputs []uuid.UUID
	if row.Inputs != "" {
		if err := json.Unmarshal([]byte(row.Inputs), &inputs); err != nil {
			return nil, fmt.Errorf("corrupt inputs of provenance record %s: %w", row.ID, err)
		}
	}
	return &provenance.Record{
		ID:            id,
		Name:          row.Name,
		Kind:          row.Kind,
		Path:          row.Path,
		Cwd:           row.Cwd,
		Command:       row.Command,
		Documentation: row.Documentation,
		Inputs:        inputs,
		RecipeHash:    row.RecipeHash,
		Status:        status,
		Fingerprint:   row.Fingerprint,
		DeclaredAt:    row.DeclaredAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) PutRun(ctx context.Context, e *ledger.Entry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return err
	}
	row := runRow{
		RunID:      e.RunID.String(),
		Campaign:   e.Campaign,
		Params:     string(params),
		OutputDir:  e.OutputDir,
		Status:     string(e.Status),
		ExitCode:   e.ExitCode,
		Output:     e.Output,
		Err:        e.Err,
		StartedAt:  e.StartedAt.UTC(),
		FinishedAt: e.FinishedAt.UTC(),
		Attempts:   e.Attempts,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "run_id"}}, UpdateAll: true}).
		Create(&row).Error
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var row runRow
	err := s.db.WithContext(ctx).First(&row, "run_id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.entry()
}

func (s *Store) ListRuns(ctx context.Context) ([]*ledger.Entry, error) {
	var rows []runRow
	if err := s.db.WithContext(ctx).Order("finished_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ledger.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (row runRow) entry() (*ledger.Entry, error) {
	id, err := uuid.Parse(row.RunID)
	if err != nil {
		return nil, fmt.Errorf("corrupt run id %q: %w", row.RunID, err)
	}
	status, err := run.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	var params run.Params
	if err := json.Unmarshal([]byte(row.Params), &params); err != nil {
		return nil, fmt.Errorf("corrupt params of run %s: %w", row.RunID, err)
	}
	return &ledger.Entry{
		RunID:      id,
		Campaign:   row.Campaign,
		Params:     params,
		OutputDir:  row.OutputDir,
		Status:     status,
		ExitCode:   row.ExitCode,
		Output:     row.Output,
		Err:        row.Err,
		StartedAt:  row.StartedAt.UTC(),
		FinishedAt: row.FinishedAt.UTC(),
		Attempts:   row.Attempts,
	}, nil
}
