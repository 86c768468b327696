package otp

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Put(ctx, "+254712345678", Entry{Code: "123456"}, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Len() == 0 })
}

func TestMemoryStoreOverwriteCancelsSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	const number = "+254712345678"
	if err := s.Put(ctx, number, Entry{Code: "111111"}, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, number, Entry{Code: "222222"}, time.Hour); err != nil {
		t.Fatal(err)
	}

	time.Sleep(60 * time.Millisecond)

	e, ok, err := s.Get(ctx, number)
	if err != nil || !ok {
		t.Fatalf("Get() = (%v, %v), newer entry was swept", ok, err)
	}
	if e.Code != "222222" {
		t.Errorf("Get() code = %q, want 222222", e.Code)
	}
}

func TestMemoryStoreDeleteAndClose(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Put(ctx, "a", Entry{Code: "1"}, time.Hour)
	_ = s.Put(ctx, "b", Entry{Code: "2"}, time.Hour)

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("deleted entry still present")
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete() of missing entry error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("Close() left %d entries", s.Len())
	}
}
