package postgres

import "testing"

func TestWithMaxConns(t *testing.T) {
	t.Parallel()

	pool := poolSettings{maxConns: 25}
	WithMaxConns(0)(&pool)
	if pool.maxConns != 25 {
		t.Fatalf("non-positive limit must keep default, got %d", pool.maxConns)
	}
	WithMaxConns(8)(&pool)
	if pool.maxConns != 8 {
		t.Fatalf("expected 8 connections, got %d", pool.maxConns)
	}
}
