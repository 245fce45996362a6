package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/common/models"
)

// snapshotCache is the online half of the store.
type snapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// snapshotTable is the offline half of the store.
type snapshotTable interface {
	Create(ctx context.Context, rec *SnapshotRecord) error
	Latest(ctx context.Context, patientID string) (*SnapshotRecord, error)
	CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var errCacheMiss = errors.New("cache miss")

type redisCache struct {
	client *redis.Client
}

func (c redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return data, err
}

func (c redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// FeatureStore serves the latest clinical snapshot per patient from Redis,
// falling back to Postgres and re-warming the cache on a miss. Either side
// may be absent.
type FeatureStore struct {
	cache    snapshotCache
	table    snapshotTable
	prefix   string
	cacheTTL time.Duration
}

func NewFeatureStore(redisClient *redis.Client, repo *SnapshotRepository, prefix string, cacheTTL time.Duration) *FeatureStore {
	fs := &FeatureStore{prefix: prefix, cacheTTL: cacheTTL}
	if redisClient != nil {
		fs.cache = redisCache{client: redisClient}
	}
	if repo != nil {
		fs.table = repo
	}
	return fs
}

func (f *FeatureStore) key(patientID string) string {
	return fmt.Sprintf("%s%s", f.prefix, patientID)
}

// GetRecord returns the patient's latest snapshot or ErrSnapshotNotFound.
func (f *FeatureStore) GetRecord(ctx context.Context, patientID string) (models.ClinicalSnapshot, error) {
	if patientID == "" {
		return models.ClinicalSnapshot{}, ErrSnapshotNotFound
	}
	key := f.key(patientID)

	if f.cache != nil {
		data, err := f.cache.Get(ctx, key)
		switch {
		case err == nil:
			var snapshot models.ClinicalSnapshot
			jsonErr := json.Unmarshal(data, &snapshot)
			if jsonErr == nil {
				return snapshot, nil
			}
			logger.Log.WithError(jsonErr).WithField("key", key).Warn("Discarding unreadable cached snapshot")
		case errors.Is(err, errCacheMiss):
		default:
			logger.Log.WithError(err).WithField("key", key).Warn("Snapshot cache read failed")
		}
	}

	if f.table == nil {
		return models.ClinicalSnapshot{}, ErrSnapshotNotFound
	}
	rec, err := f.table.Latest(ctx, patientID)
	if err != nil {
		return models.ClinicalSnapshot{}, err
	}
	snapshot := models.ClinicalSnapshot{
		PatientID:  rec.PatientID,
		Features:   map[string]interface{}(rec.Features),
		RecordedAt: rec.RecordedAt,
	}
	f.warm(ctx, key, snapshot)
	return snapshot, nil
}

// PutRecord stores a new snapshot in Postgres, then refreshes the cache.
func (f *FeatureStore) PutRecord(ctx context.Context, patientID string, features map[string]interface{}) (models.ClinicalSnapshot, error) {
	if patientID == "" {
		return models.ClinicalSnapshot{}, errors.New("patient id required")
	}
	snapshot := models.ClinicalSnapshot{
		PatientID:  patientID,
		Features:   features,
		RecordedAt: time.Now().UTC(),
	}
	if f.table != nil {
		rec := &SnapshotRecord{PatientID: patientID, Features: features, RecordedAt: snapshot.RecordedAt}
		if err := f.table.Create(ctx, rec); err != nil {
			return models.ClinicalSnapshot{}, fmt.Errorf("storing snapshot: %w", err)
		}
	}
	f.warm(ctx, f.key(patientID), snapshot)
	return snapshot, nil
}

// Prune deletes stored snapshots recorded more than retention ago. Cached
// entries are left to expire on their own TTL.
func (f *FeatureStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if f.table == nil || retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention)
	removed, err := f.table.CleanupBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"cutoff":  cutoff,
		"removed": removed,
	}).Info("Pruned clinical snapshots")
	return removed, nil
}

func (f *FeatureStore) warm(ctx context.Context, key string, snapshot models.ClinicalSnapshot) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("Failed to encode snapshot for cache")
		return
	}
	if err := f.cache.Set(ctx, key, data, f.cacheTTL); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("Failed to cache snapshot")
		return
	}
	logger.Log.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Cached snapshot")
}
