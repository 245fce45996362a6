package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrSnapshotNotFound is returned when a patient has no stored snapshot.
var ErrSnapshotNotFound = errors.New("clinical snapshot not found")

type SnapshotRecord struct {
	ID         uint              `json:"id" gorm:"primaryKey;column:id"`
	PatientID  string            `json:"patient_id" gorm:"column:patient_id;index:idx_snapshot_patient_time"`
	Features   datatypes.JSONMap `json:"features" gorm:"column:features"`
	RecordedAt time.Time         `json:"recorded_at" gorm:"column:recorded_at;index:idx_snapshot_patient_time"`
	CreatedAt  time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (SnapshotRecord) TableName() string {
	return "clinical_snapshots"
}

// SnapshotRepository keeps every snapshot ever written; reads return the
// latest one per patient.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&SnapshotRecord{})
}

func (r *SnapshotRepository) Create(ctx context.Context, rec *SnapshotRecord) error {
	rec.CreatedAt = time.Now().UTC()
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = rec.CreatedAt
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *SnapshotRepository) Latest(ctx context.Context, patientID string) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	result := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("recorded_at DESC").
		Order("id DESC").
		First(&rec)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &rec, nil
}

func (r *SnapshotRepository) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("recorded_at < ?", cutoff).Delete(&SnapshotRecord{})
	return result.RowsAffected, result.Error
}
