// Package store persists the uploaded datasets and result snapshots with gorm
// and caches results by content hash.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"conciliacion-service/internal/domain"
)

// ErrNotFound is returned when no dataset or snapshot is stored.
var ErrNotFound = errors.New("not found")

// DatasetModel is the stored form of one source. Only the latest upload of
// each kind is kept; rows are typed cells in JSON.
type DatasetModel struct {
	Kind      string `gorm:"primaryKey;size:32"`
	BatchID   string `gorm:"size:36;not null"`
	Headers   string `gorm:"type:text;not null"`
	Rows      string `gorm:"type:text;not null"`
	RowCount  int
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (DatasetModel) TableName() string { return "datasets" }

// SnapshotModel is a persisted result in cache shape.
type SnapshotModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Hash        string    `gorm:"size:64;index"`
	GeneratedAt time.Time `gorm:"index"`
	Payload     string    `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

// TableName overrides the gorm default.
func (SnapshotModel) TableName() string { return "snapshots" }

// Open connects to the configured database driver, sqlite or postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Store reads and writes datasets and snapshots.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a Store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&DatasetModel{}, &SnapshotModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// SaveDataset replaces the stored dataset of ds.Kind and returns the new
// batch id.
func (s *Store) SaveDataset(ctx context.Context, ds domain.Dataset) (string, error) {
	if !ds.Kind.IsValid() {
		return "", fmt.Errorf("invalid dataset kind %q", ds.Kind)
	}
	headers, err := json.Marshal(ds.Headers)
	if err != nil {
		return "", fmt.Errorf("failed to encode headers: %w", err)
	}
	rows, err := json.Marshal(encodeRows(ds.Rows))
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}

	m := DatasetModel{
		Kind:     string(ds.Kind),
		BatchID:  uuid.NewString(),
		Headers:  string(headers),
		Rows:     string(rows),
		RowCount: len(ds.Rows),
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return "", fmt.Errorf("failed to save %s dataset: %w", ds.Kind, err)
	}
	return m.BatchID, nil
}

// LoadDataset returns the stored dataset of kind, or ErrNotFound.
func (s *Store) LoadDataset(ctx context.Context, kind domain.SourceKind) (domain.Dataset, error) {
	var m DatasetModel
	err := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Dataset{Kind: kind}, ErrNotFound
	}
	if err != nil {
		return domain.Dataset{Kind: kind}, fmt.Errorf("failed to load %s dataset: %w", kind, err)
	}
	return m.dataset()
}

func (m DatasetModel) dataset() (domain.Dataset, error) {
	ds := domain.Dataset{Kind: domain.SourceKind(m.Kind)}
	if err := json.Unmarshal([]byte(m.Headers), &ds.Headers); err != nil {
		return ds, fmt.Errorf("failed to decode %s headers: %w", m.Kind, err)
	}
	var rows []map[string]cell
	if err := json.Unmarshal([]byte(m.Rows), &rows); err != nil {
		return ds, fmt.Errorf("failed to decode %s rows: %w", m.Kind, err)
	}
	decoded, err := decodeRows(rows)
	if err != nil {
		return ds, fmt.Errorf("failed to decode %s rows: %w", m.Kind, err)
	}
	ds.Rows = decoded
	return ds, nil
}

// LoadSources returns every stored dataset. Kinds never uploaded are empty.
func (s *Store) LoadSources(ctx context.Context) (domain.Sources, error) {
	var models []DatasetModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return domain.Sources{}, fmt.Errorf("failed to load datasets: %w", err)
	}
	var src domain.Sources
	for _, m := range models {
		ds, err := m.dataset()
		if err != nil {
			return domain.Sources{}, err
		}
		if ds.Kind.IsValid() {
			src.Set(ds.Kind, ds)
		}
	}
	return src, nil
}

// SaveSnapshot persists res in cache shape.
func (s *Store) SaveSnapshot(ctx context.Context, res *domain.Result) error {
	payload, err := json.Marshal(NewResultDTO(res))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	id := res.ID
	if id == "" {
		id = uuid.NewString()
	}
	m := SnapshotModel{
		ID:          id,
		Hash:        res.Hash,
		GeneratedAt: res.GeneratedAt.UTC(),
		Payload:     string(payload),
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently generated snapshot, or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context) (*domain.Result, error) {
	var m SnapshotModel
	err := s.db.WithContext(ctx).Order("generated_at DESC").Order("created_at DESC").Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeResult([]byte(m.Payload))
}

func decodeResult(payload []byte) (*domain.Result, error) {
	var dto ResultDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return dto.Result()
}
