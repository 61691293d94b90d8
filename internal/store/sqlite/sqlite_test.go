package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/NicolasFrouin/chat/internal/store"
	"github.com/NicolasFrouin/chat/internal/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		if err := Migrate(db); err != nil {
			return err
		}
		return Migrate(db)
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := s.CreateUser(context.Background(), store.Profile{Name: "alice", Color: "#fff"}); err != nil {
		t.Fatalf("create user after double migrate: %v", err)
	}
}

func TestSearchNameIsExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "alicia", "Alice"} {
		if _, err := s.CreateUser(ctx, store.Profile{Name: name, Color: "#000"}); err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
	}

	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{name: "lowercase", query: "alice", expected: "alice"},
		{name: "capitalized", query: "Alice", expected: "Alice"},
		{name: "longer", query: "alicia", expected: "alicia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := s.GetUserByName(ctx, tt.query)
			if err != nil {
				t.Fatalf("GetUserByName failed: %v", err)
			}
			if user.Name != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, user.Name)
			}
		})
	}
}
