package cache

import (
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"
)

type released struct {
	mu   sync.Mutex
	keys []string
}

func (r *released) fn(k string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, k)
}

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](0, nil)
	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache reported ok")
	}
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var rel released
	c := New[string, int](3, rel.fn)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("a") // a is now most recent, b is oldest
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if !slices.Equal(rel.keys, []string{"b"}) {
		t.Errorf("released = %v, want [b]", rel.keys)
	}
	if got, want := c.Keys(), []string{"d", "a", "c"}; !slices.Equal(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if s := c.Stats(); s.Evictions != 1 || s.Len != 3 || s.Capacity != 3 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCacheSetReleasesReplaced(t *testing.T) {
	var rel released
	c := New[string, int](0, rel.fn)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if !slices.Equal(rel.keys, []string{"a"}) {
		t.Errorf("released = %v", rel.keys)
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](0, nil)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}
	for range 3 {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCreate = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	errCompile := errors.New("compile failed")
	_, err := c.GetOrCreate("bad", func() (int, error) { return 0, errCompile })
	if !errors.Is(err, errCompile) {
		t.Errorf("GetOrCreate error = %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed create was cached")
	}

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 3 {
		t.Errorf("hits/misses = %d/%d, want 2/3", s.Hits, s.Misses)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	var rel released
	c := New[string, int](0, rel.fn)
	for i := range 4 {
		c.Set(strconv.Itoa(i), i)
	}
	if !c.Delete("1") {
		t.Error("Delete(1) = false")
	}
	if c.Delete("1") {
		t.Error("second Delete(1) = true")
	}
	c.Clear()
	if c.Len() != 0 || len(c.Keys()) != 0 {
		t.Error("cache not empty after Clear")
	}
	if got, want := rel.keys, []string{"1", "3", "2", "0"}; !slices.Equal(got, want) {
		t.Errorf("released = %v, want %v", got, want)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[string, int](16, nil)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := strconv.Itoa((g + i) % 32)
				_, _ = c.GetOrCreate(key, func() (int, error) { return i, nil })
				c.Get(key)
			}
		}()
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}
