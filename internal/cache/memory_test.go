package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	c := NewMemory("t:", time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v" {
		t.Fatalf("Get devolvió %q", got)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = c.Get(ctx, "k")
	if !IsNotFound(err) {
		t.Fatalf("esperaba ErrNotFound tras delete, got %v", err)
	}
}

func TestMemory_MissIsNotFound(t *testing.T) {
	c := NewMemory("", time.Minute)
	_, err := c.Get(context.Background(), "nunca-seteada")
	if !IsNotFound(err) {
		t.Fatalf("esperaba ErrNotFound, got %v", err)
	}
}

func TestNew_FactoryDefaultsToMemory(t *testing.T) {
	c, err := New(Config{Kind: "memory", DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_ = c.Close()
}
