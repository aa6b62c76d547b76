package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

func TestDocumentStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	rows := pgxmock.NewRows([]string{"payload", "version"}).
		AddRow([]byte(`{"identities":{}}`), int64(7))

	mock.ExpectQuery(`SELECT payload, version FROM gate\.documents WHERE path = \$1`).
		WithArgs("registry.json").
		WillReturnRows(rows)

	payload, version, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(payload) != `{"identities":{}}` {
		t.Errorf("payload = %q", payload)
	}
	if version != "7" {
		t.Errorf("version = %q, want 7", version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	mock.ExpectQuery(`SELECT payload, version FROM gate\.documents`).
		WithArgs("registry.json").
		WillReturnError(pgx.ErrNoRows)

	if _, _, err := store.Get(context.Background()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestDocumentStore_Put_AdvancesVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	mock.ExpectExec(`UPDATE gate\.documents SET payload = \$1, version = \$2, updated_at = now\(\) WHERE path = \$3 AND version = \$4`).
		WithArgs([]byte(`{"v":2}`), int64(8), "registry.json", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	version, err := store.Put(context.Background(), []byte(`{"v":2}`), "7")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if version != "8" {
		t.Errorf("version = %q, want 8", version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_Put_StaleVersionConflicts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	mock.ExpectExec(`UPDATE gate\.documents`).
		WithArgs([]byte(`{"v":2}`), int64(8), "registry.json", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if _, err := store.Put(context.Background(), []byte(`{"v":2}`), "7"); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("Put error = %v, want ErrVersionConflict", err)
	}
}

func TestDocumentStore_Put_MalformedVersionToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	if _, err := store.Put(context.Background(), []byte("x"), "abc123"); !errors.Is(err, repository.ErrMalformed) {
		t.Fatalf("Put error = %v, want ErrMalformed", err)
	}
}

func TestDocumentStore_Put_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	mock.ExpectExec(`INSERT INTO gate\.documents \(path,payload,version,updated_at\) VALUES \(\$1,\$2,\$3,now\(\)\) ON CONFLICT \(path\) DO NOTHING`).
		WithArgs("registry.json", []byte(`{"v":1}`), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	version, err := store.Put(context.Background(), []byte(`{"v":1}`), "")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if version != "1" {
		t.Errorf("version = %q, want 1", version)
	}
}

func TestDocumentStore_Put_CreateRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewDocumentStore(mock, "registry.json")

	mock.ExpectExec(`INSERT INTO gate\.documents`).
		WithArgs("registry.json", []byte(`{"v":1}`), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if _, err := store.Put(context.Background(), []byte(`{"v":1}`), ""); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("Put error = %v, want ErrVersionConflict", err)
	}
}
