package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/terminus/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("summary", "Bond (finance)")
	b := Key("summary", "Bond (finance)")
	c := Key("search", "Bond (finance)")

	if a != b {
		t.Error("same parts must give the same key")
	}
	if a == c {
		t.Error("different namespaces must not collide")
	}
	if !strings.HasPrefix(a, "terminus:v1:") {
		t.Errorf("unexpected prefix: %s", a)
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries must matter")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("summary", "bond")

	if err := c.Set(key, []byte("a debt security"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "a debt security" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	if err := c.Set(key, []byte("stale"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}

	if err := c.Delete(key); err != nil {
		t.Errorf("Delete of missing entry: %v", err)
	}
}

func TestDiskCache_CorruptEntryMisses(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("x")

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("corrupt entry should miss")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

func TestLayeredCache_Backfill(t *testing.T) {
	memory := NewMemory(time.Hour)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	layered := NewLayeredCache(memory, disk)
	key := Key("summary", "stock")

	if err := disk.Set(key, []byte("equity share"), 0); err != nil {
		t.Fatal(err)
	}
	if memory.Len() != 0 {
		t.Fatal("memory should start empty")
	}

	got, ok := layered.Get(key)
	if !ok || string(got) != "equity share" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := memory.Get(key); !ok {
		t.Error("disk hit should be promoted to memory")
	}

	if err := layered.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := layered.Get(key); ok {
		t.Error("deleted entry should miss")
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemory(time.Hour)
	type hit struct {
		Title string `json:"title"`
	}

	if err := SetJSON(c, "k", []hit{{Title: "Bond (finance)"}}, 0); err != nil {
		t.Fatal(err)
	}
	var got []hit
	if !GetJSON(c, "k", &got) || len(got) != 1 || got[0].Title != "Bond (finance)" {
		t.Errorf("GetJSON = %+v", got)
	}
	if GetJSON(c, "missing", &got) {
		t.Error("missing key should report false")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(model.CacheConfig{Enabled: false}).(Noop); !ok {
		t.Error("disabled cache should be Noop")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute}).(*Memory); !ok {
		t.Error("cache without dir should be memory only")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, Dir: t.TempDir()}).(*LayeredCache); !ok {
		t.Error("cache with dir should be layered")
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory(time.Hour)
	in := []byte("bond")
	if err := m.Set("k", in, 0); err != nil {
		t.Fatal(err)
	}
	in[0] = 'X'

	out, ok := m.Get("k")
	if !ok || string(out) != "bond" {
		t.Fatalf("Get = %q, %v", out, ok)
	}
	out[0] = 'Y'
	if again, _ := m.Get("k"); string(again) != "bond" {
		t.Errorf("cached value was mutated through Get: %q", again)
	}
}
