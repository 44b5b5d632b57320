package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var pgTestNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db).WithNow(func() time.Time { return pgTestNow }), mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectQuery(pgGet).WithArgs("k", pgTestNow).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("v")))

	v, err := store.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v" {
		t.Errorf("value = %q, want v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectQuery(pgGet).WithArgs("k", pgTestNow).WillReturnError(sql.ErrNoRows)

	if _, err := store.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_SetWithTTL(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectExec(pgUpsert).WithArgs("k", []byte("v"), pgTestNow.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetWithTTL(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectExec(pgDelete).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_Update_InsertsWhenMissing(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(pgLockKey).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgSelectLocked).WithArgs("k").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(pgUpsert).WithArgs("k", []byte("1"), pgTestNow.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), "k", func(cur []byte, found bool) (Mutation, error) {
		if found {
			t.Error("found should be false")
		}
		return Put([]byte("1"), time.Hour), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_Update_ExpiredRowIsNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(pgLockKey).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgSelectLocked).WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}).AddRow([]byte("old"), pgTestNow.Add(-time.Second)))
	mock.ExpectCommit()

	err := store.Update(context.Background(), "k", func(cur []byte, found bool) (Mutation, error) {
		if found || cur != nil {
			t.Errorf("expired row should be reported missing, got found=%v cur=%q", found, cur)
		}
		return Keep(), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_Update_DeleteLiveRow(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(pgLockKey).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgSelectLocked).WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}).AddRow([]byte("cur"), pgTestNow.Add(time.Minute)))
	mock.ExpectExec(pgDelete).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), "k", func(cur []byte, found bool) (Mutation, error) {
		if !found || string(cur) != "cur" {
			t.Errorf("cur = %q found = %v", cur, found)
		}
		return Remove(), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_Update_CallerErrorRollsBack(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	sentinel := errors.New("abort")
	mock.ExpectBegin()
	mock.ExpectExec(pgLockKey).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgSelectLocked).WithArgs("k").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.Update(context.Background(), "k", func([]byte, bool) (Mutation, error) {
		return Keep(), sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("want sentinel, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresStore_PurgeExpired(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectExec(pgPurge).WithArgs(pgTestNow).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
}
