package responsecache

import (
	"testing"
	"time"
)

func TestGetSetClear(t *testing.T) {
	c := New(Config{TTL: time.Minute}, nil)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}

	c.Set("k1", []byte("v1"))
	got, ok := c.Get("k1")
	if !ok || string(got) != "v1" {
		t.Errorf("expected hit with v1, got %q ok=%v", got, ok)
	}

	c.Clear()
	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss after Clear")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestExpiry(t *testing.T) {
	c := New(Config{TTL: 10 * time.Millisecond}, nil)
	c.Set("k", []byte("v"))

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestJanitorRemovesExpired(t *testing.T) {
	c := New(Config{TTL: 5 * time.Millisecond, CleanupInterval: 10 * time.Millisecond}, nil)
	c.StartCleanup()
	defer c.Stop()

	c.Set("k", []byte("v"))
	time.Sleep(30 * time.Millisecond)

	if c.Len() != 0 {
		t.Errorf("janitor should have removed expired entry, len=%d", c.Len())
	}
}

func TestKeyDeterministic(t *testing.T) {
	if Key("note text") != Key("note text") {
		t.Error("same text must hash to same key")
	}
	if Key("note a") == Key("note b") {
		t.Error("different text must hash to different keys")
	}
}
