package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			if !strings.Contains(sql, "system_settings") {
				t.Errorf("query should target system_settings, got: %s", sql)
			}
			if args[0] != "openai_api_key" {
				t.Errorf("key arg = %v, want openai_api_key", args[0])
			}
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*string) = "sk-stored"
				return nil
			}}
		},
	}
	s := NewPostgresStore(db)
	v, ok, err := s.Get(context.Background(), "openai_api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != "sk-stored" {
		t.Errorf("Get = (%q, %v), want (sk-stored, true)", v, ok)
	}
}

func TestPostgresStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := NewPostgresStore(&mockDB{})
	v, ok, err := s.Get(context.Background(), "llm_provider")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || v != "" {
		t.Errorf("Get = (%q, %v), want (\"\", false)", v, ok)
	}
}

func TestPostgresStore_GetError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	db := &mockDB{
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return &mockRow{scanFunc: func(...any) error { return boom }}
		},
	}
	_, _, err := NewPostgresStore(db).Get(context.Background(), "k")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS system_settings") {
				t.Errorf("Migrate SQL should create system_settings, got: %s", sql)
			}
			return pgconn.CommandTag{}, nil
		},
	}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	failing := &mockDB{
		execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("permission denied")
		},
	}
	if err := NewPostgresStore(failing).Migrate(context.Background()); err == nil {
		t.Fatal("expected migrate error")
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int) = 1
				return nil
			}}
		},
	}
	if err := NewPostgresStore(db).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := NewPostgresStore(&mockDB{}).Ping(context.Background()); err == nil {
		t.Fatal("expected ping error when no row comes back")
	}
}

func TestMemStore(t *testing.T) {
	t.Parallel()

	seed := map[string]string{"llm_provider": "anthropic"}
	m := NewMemStore(seed)
	seed["llm_provider"] = "openai"

	v, ok, _ := m.Get(context.Background(), "llm_provider")
	if !ok || v != "anthropic" {
		t.Errorf("Get = (%q, %v), want (anthropic, true); seed must be copied", v, ok)
	}

	m.Set("openai_api_key", "sk-x")
	if v, _, _ := m.Get(context.Background(), "openai_api_key"); v != "sk-x" {
		t.Errorf("after Set, Get = %q", v)
	}
	m.Delete("openai_api_key")
	if _, ok, _ := m.Get(context.Background(), "openai_api_key"); ok {
		t.Error("after Delete, key still present")
	}
}
