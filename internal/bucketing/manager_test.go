package bucketing

import (
	"testing"
	"time"

	"secmon-service/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Bucketing:   config.BucketingConfig{EventBuckets: 64, AttemptBuckets: 32},
	}
}

func TestBucketsDeterministicAndInRange(t *testing.T) {
	bm := NewBucketingManager(testConfig())

	for _, key := range []string{"a", "event-123", "user@example.com"} {
		first := bm.GetEventBucket(key)
		for i := 0; i < 10; i++ {
			if got := bm.GetEventBucket(key); got != first {
				t.Fatalf("GetEventBucket(%q) unstable: %d then %d", key, first, got)
			}
		}
		if first < 0 || first >= 64 {
			t.Errorf("GetEventBucket(%q) = %d, out of range", key, first)
		}

		if got := bm.GetAttemptBucket(key); got < 0 || got >= 32 {
			t.Errorf("GetAttemptBucket(%q) = %d, out of range", key, got)
		}
	}
}

func TestGetDateBucket(t *testing.T) {
	bm := NewBucketingManager(testConfig())

	at := time.Date(2026, 8, 31, 23, 30, 0, 0, time.FixedZone("plus5", 5*3600))
	if got := bm.GetDateBucket(at); got != "2026-08-31" {
		t.Errorf("GetDateBucket = %q, want UTC date 2026-08-31", got)
	}
}

func TestGetTimeBucket(t *testing.T) {
	bm := NewBucketingManager(testConfig())

	at := time.Unix(1000, 0)
	if got := bm.GetTimeBucket(at, 60); got != 960 {
		t.Errorf("GetTimeBucket = %d, want 960", got)
	}
	if got := bm.GetTimeBucket(at.Add(30*time.Second), 60); got != 1020 {
		t.Errorf("GetTimeBucket(+30s) = %d, want 1020", got)
	}
}

func TestZeroBuckets(t *testing.T) {
	bm := NewBucketingManager(&config.Config{})

	if got := bm.GetEventBucket("key"); got != 0 {
		t.Errorf("GetEventBucket with zero buckets = %d, want 0", got)
	}
}
