package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/webvault/webvault/internal/archive"
)

// archiveRow is the catalog's persisted shape. Page and asset records are
// kept as serialized JSON; the catalog exists to survive restarts, not to
// be queried relationally.
type archiveRow struct {
	ID             string    `gorm:"primaryKey;size:36"`
	SourceURL      string    `gorm:"size:2000;not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
	Status         string    `gorm:"size:32;not null"`
	TotalSizeBytes int64
	PagesJSON      string `gorm:"type:text"`
	AssetsJSON     string `gorm:"type:text"`
}

func (archiveRow) TableName() string {
	return "archives"
}

// Catalog persists archive records in an embedded sqlite database so the
// in-memory index can be rebuilt at startup.
type Catalog struct {
	db *gorm.DB
}

// OpenCatalog opens (creating if needed) the sqlite catalog at dsn.
func OpenCatalog(dsn string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.AutoMigrate(&archiveRow{}); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Save inserts one archive record.
func (c *Catalog) Save(a archive.Archive) error {
	row, err := toRow(a)
	if err != nil {
		return err
	}
	if err := c.db.Create(&row).Error; err != nil {
		return fmt.Errorf("save archive %s: %w", a.ID, err)
	}
	return nil
}

// Delete removes the row for id; a missing row is not an error.
func (c *Catalog) Delete(id string) error {
	if err := c.db.Delete(&archiveRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete archive %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every stored archive, most recent first.
func (c *Catalog) LoadAll() ([]archive.Archive, error) {
	var rows []archiveRow
	if err := c.db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load archives: %w", err)
	}
	out := make([]archive.Archive, 0, len(rows))
	for _, row := range rows {
		a, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("catalog db handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}
	return nil
}

func toRow(a archive.Archive) (archiveRow, error) {
	pages, err := json.Marshal(a.Pages)
	if err != nil {
		return archiveRow{}, fmt.Errorf("marshal pages: %w", err)
	}
	assets, err := json.Marshal(a.Assets)
	if err != nil {
		return archiveRow{}, fmt.Errorf("marshal assets: %w", err)
	}
	return archiveRow{
		ID:             a.ID,
		SourceURL:      a.SourceURL,
		CreatedAt:      a.CreatedAt,
		Status:         string(a.Status),
		TotalSizeBytes: a.TotalSizeBytes,
		PagesJSON:      string(pages),
		AssetsJSON:     string(assets),
	}, nil
}

func fromRow(row archiveRow) (archive.Archive, error) {
	a := archive.Archive{
		ID:             row.ID,
		SourceURL:      row.SourceURL,
		CreatedAt:      row.CreatedAt,
		Status:         archive.Status(row.Status),
		TotalSizeBytes: row.TotalSizeBytes,
	}
	if row.PagesJSON != "" {
		if err := json.Unmarshal([]byte(row.PagesJSON), &a.Pages); err != nil {
			return archive.Archive{}, fmt.Errorf("unmarshal pages for %s: %w", row.ID, err)
		}
	}
	if row.AssetsJSON != "" {
		if err := json.Unmarshal([]byte(row.AssetsJSON), &a.Assets); err != nil {
			return archive.Archive{}, fmt.Errorf("unmarshal assets for %s: %w", row.ID, err)
		}
	}
	return a, nil
}
