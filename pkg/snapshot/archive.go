package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SnapshotRecord is one archived snapshot payload.
type SnapshotRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Version   int    `gorm:"not null"`
	Payload   []byte `gorm:"not null"`
}

// Archive keeps a history of saved snapshots in a database, so state
// can be restored when the snapshot file is missing. Works against
// sqlite or postgres depending on the dialector.
type Archive struct {
	db *gorm.DB
}

func OpenArchive(dialector gorm.Dialector) (*Archive, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("archive migration: %w", err)
	}
	return &Archive{db: db}, nil
}

// Append stores the envelope as a new archive record.
func (a *Archive) Append(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	record := SnapshotRecord{Version: env.Version, Payload: payload}
	if err := a.db.Create(&record).Error; err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// Latest returns the payload of the most recent archived snapshot, or
// gorm.ErrRecordNotFound when the archive is empty.
func (a *Archive) Latest() ([]byte, error) {
	var record SnapshotRecord
	if err := a.db.Order("id DESC").First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return record.Payload, nil
}

// List returns metadata for the newest archived snapshots, most recent
// first.
func (a *Archive) List(limit int) ([]SnapshotRecord, error) {
	var records []SnapshotRecord
	query := a.db.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return records, nil
}
