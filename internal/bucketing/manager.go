package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"secmon-service/internal/config"
)

// BucketingManager assigns consistent partition buckets so high-volume tables
// (security_events, threat_records) spread writes across the cluster instead
// of hammering a single time-ordered partition.
type BucketingManager struct {
	eventBuckets   int
	attemptBuckets int
	hasherPool     sync.Pool
	config         *config.Config
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		eventBuckets:   cfg.Bucketing.EventBuckets,
		attemptBuckets: cfg.Bucketing.AttemptBuckets,
		config:         cfg,
	}

	// Pool of hash functions to avoid allocation overhead on the hot path
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetEventBucket returns the consistent bucket for an audit event identifier
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return bm.getBucket(identifier, bm.eventBuckets)
}

// GetAttemptBucket returns the consistent bucket for a login-attempt key
func (bm *BucketingManager) GetAttemptBucket(identifier string) int {
	return bm.getBucket(identifier, bm.attemptBuckets)
}

// GetDateBucket returns the UTC date partition component for event tables
func (bm *BucketingManager) GetDateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// GetTimeBucket truncates a timestamp to a fixed window, in epoch seconds
func (bm *BucketingManager) GetTimeBucket(at time.Time, windowSeconds int) int64 {
	return at.Unix() / int64(windowSeconds) * int64(windowSeconds)
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

func (bm *BucketingManager) EventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) AttemptBuckets() int {
	return bm.attemptBuckets
}
