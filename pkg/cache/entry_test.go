package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCacheEntry_Expiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		expires     time.Time
		wantExpired bool
		wantTTLMin  time.Duration
		wantTTLMax  time.Duration
	}{
		{"default page ttl", now.Add(DefaultTTL), false, DefaultTTL - time.Second, DefaultTTL},
		{"source expires soon", now.Add(30 * time.Second), false, 29 * time.Second, 30 * time.Second},
		{"expired a second ago", now.Add(-time.Second), true, 0, 0},
		{"zero expiry", time.Time{}, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := entry.TTL(); got < tt.wantTTLMin || got > tt.wantTTLMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantTTLMin, tt.wantTTLMax)
			}
		})
	}
}

func TestCacheEntry_JSONKeepsPageBody(t *testing.T) {
	body := []byte(`{"total":250,"page":3,"size":100,"pages":3,"items":[{"id":9007199254740993}]}`)
	entry := &CacheEntry{
		Data:       body,
		StatusCode: 200,
		Expires:    time.Date(2024, time.October, 7, 10, 5, 0, 0, time.UTC),
		CachedAt:   time.Date(2024, time.October, 7, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded CacheEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if string(decoded.Data) != string(body) {
		t.Errorf("Data = %s, want %s", decoded.Data, body)
	}
	if !decoded.Expires.Equal(entry.Expires) || decoded.StatusCode != 200 {
		t.Errorf("decoded = %+v", decoded)
	}
}
