package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/quarryhq/quarry/pkg/models"
)

func mockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresFromDB(db), mock
}

func TestPostgresSave(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec(`INSERT INTO snapshots`).
		WithArgs("snap-1", "explore", "gpt-5", sqlmock.AnyArg(), 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	snap := &models.Snapshot{
		ID:      "snap-1",
		Profile: "explore",
		Model:   "gpt-5",
		History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	}
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresLoad(t *testing.T) {
	store, mock := mockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "profile", "model", "history", "created_at", "updated_at"}).
		AddRow("snap-1", "explore", "gpt-5", `[{"role":"user","content":"hi"}]`, now, now)
	mock.ExpectQuery(`SELECT id, profile, model, history`).
		WithArgs("snap-1").
		WillReturnRows(rows)

	snap, err := store.Load(context.Background(), "snap-1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Profile != "explore" || len(snap.History) != 1 || snap.History[0].Content != "hi" {
		t.Fatalf("snap = %+v", snap)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresLoadMissing(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery(`SELECT id, profile, model, history`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile", "model", "history", "created_at", "updated_at"}))

	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPostgresDeleteMissing(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec(`DELETE FROM snapshots`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
