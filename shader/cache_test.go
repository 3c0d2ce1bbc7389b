package shader

import (
	"errors"
	"sync"
	"testing"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Set(1, []uint32{1})
	c.Set(2, []uint32{2})
	if _, ok := c.Get(1); !ok {
		t.Fatal("Get(1) missed")
	}
	c.Set(3, []uint32{3})

	if _, ok := c.Get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	for _, key := range []uint64{1, 3} {
		if code, ok := c.Get(key); !ok || code[0] != uint32(key) {
			t.Errorf("Get(%d) = %v, %v", key, code, ok)
		}
	}

	st := c.Stats()
	if st.Len != 2 || st.Capacity != 2 || st.Evictions != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Hits != 3 || st.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", st.Hits, st.Misses)
	}
}

func TestCacheDefaultCapacity(t *testing.T) {
	if got := NewCache(0).Stats().Capacity; got != DefaultCacheCapacity {
		t.Errorf("capacity = %d, want %d", got, DefaultCacheCapacity)
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := NewCache(4)
	calls := 0
	create := func() ([]uint32, error) {
		calls++
		return []uint32{Magic}, nil
	}
	for range 3 {
		if _, err := c.GetOrCreate(7, create); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate(8, func() ([]uint32, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("GetOrCreate() error = %v, want boom", err)
	}
	if _, ok := c.Get(8); ok {
		t.Error("failed creation was cached")
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache(8)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := uint64(i % 4)
			_, _ = c.GetOrCreate(key, func() ([]uint32, error) { return []uint32{uint32(key)}, nil })
		}()
	}
	wg.Wait()
	if st := c.Stats(); st.Len != 4 || st.Misses != 4 || st.Hits != 12 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(4)
	c.Set(1, []uint32{1})
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
}

func TestKeySeparatesParts(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Key does not separate parts")
	}
	if Key("wgsl", SkyWGSL) != Key("wgsl", SkyWGSL) {
		t.Error("Key is not deterministic")
	}
}

func TestCacheStatsHitRate(t *testing.T) {
	tests := []struct {
		st   CacheStats
		want float64
	}{
		{CacheStats{}, 0},
		{CacheStats{Hits: 3, Misses: 1}, 0.75},
	}
	for _, tt := range tests {
		if got := tt.st.HitRate(); got != tt.want {
			t.Errorf("HitRate(%+v) = %v, want %v", tt.st, got, tt.want)
		}
	}
}
