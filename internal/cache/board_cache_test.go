package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*BoardCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := New("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create board cache: %v", err)
	}
	return c, s
}

func TestNewBoardCache(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	c, err := New("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSetAndGetSnapshot(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	snapshot := []byte(`{"board":{"id":"brd_1"}}`)

	if err := c.Set(ctx, "brd_1", snapshot); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "brd_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(snapshot) {
		t.Errorf("got %q, want %q", got, snapshot)
	}
}

func TestGetMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	_, err := c.Get(context.Background(), "brd_missing")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "brd_1", []byte(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Invalidate(ctx, "brd_1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.Get(ctx, "brd_1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after invalidate, got %v", err)
	}
}

func TestSnapshotExpires(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "brd_1", []byte(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "brd_1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
}
