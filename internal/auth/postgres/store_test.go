package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

var accountRowColumns = []string{
	"id", "email", "first_name", "last_name", "password_hash",
	"refresh_token_hash", "role", "is_active", "created_at", "updated_at",
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(db), mock
}

func aliceRow(refresh any) *sqlmock.Rows {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(accountRowColumns).
		AddRow("acc-1", "alice@example.com", "Alice", "Smith", "$2a$12$hash", refresh, "user", true, ts, ts)
}

func TestCreate_Success(t *testing.T) {
	store, mock := newStoreWithMock(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+accounts\s*\(id,\s*email,.*\)\s*VALUES\s*\(\$1,.*\$8\)\s*RETURNING\s+created_at,\s*updated_at$`).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", "Alice", "Smith", "$2a$12$hash", sql.NullString{}, "user", true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))

	a := &auth.Account{
		Email: "alice@example.com", FirstName: "Alice", LastName: "Smith",
		PasswordHash: "$2a$12$hash", IsActive: true,
	}
	require.NoError(t, store.Create(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, auth.RoleUser, a.Role)
	assert.Equal(t, ts, a.CreatedAt)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^INSERT\s+INTO\s+accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := store.Create(context.Background(), &auth.Account{Email: "alice@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, auth.ErrEmailExists)
}

func TestCreate_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^INSERT\s+INTO\s+accounts`).WillReturnError(errors.New("db down"))

	err := store.Create(context.Background(), &auth.Account{Email: "alice@example.com", PasswordHash: "h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating account: db down")
}

func TestFindByEmail_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("alice@example.com").
		WillReturnRows(aliceRow("$2a$12$renewal"))

	a, err := store.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", a.ID)
	assert.Equal(t, auth.RoleUser, a.Role)
	assert.True(t, a.IsActive)
	assert.True(t, a.HasLiveSession())
}

func TestFindByID_NoLiveSession(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("acc-1").
		WillReturnRows(aliceRow(nil))

	a, err := store.FindByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.False(t, a.HasLiveSession())
}

func TestFindByID_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestSetRenewalVerifier(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+refresh_token_hash\s*=\s*\$2,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("acc-1", sql.NullString{String: "v1", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+refresh_token_hash`).
		WithArgs("acc-1", sql.NullString{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+refresh_token_hash`).
		WithArgs("ghost", sql.NullString{}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, store.SetRenewalVerifier(ctx, "acc-1", "v1"))
	require.NoError(t, store.SetRenewalVerifier(ctx, "acc-1", ""))
	assert.ErrorIs(t, store.SetRenewalVerifier(ctx, "ghost", ""), auth.ErrAccountNotFound)
}

func TestSwapRenewalVerifier(t *testing.T) {
	store, mock := newStoreWithMock(t)

	q := `(?s)^UPDATE\s+accounts\s+SET\s+refresh_token_hash\s*=\s*\$3.*WHERE\s+id\s*=\s*\$1\s+AND\s+refresh_token_hash\s*=\s*\$2$`
	mock.ExpectExec(q).
		WithArgs("acc-1", "v1", sql.NullString{String: "v2", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("acc-1", "v1", sql.NullString{String: "v3", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, store.SwapRenewalVerifier(ctx, "acc-1", "v1", "v2"))
	assert.ErrorIs(t, store.SwapRenewalVerifier(ctx, "acc-1", "v1", "v3"), auth.ErrStaleVerifier)
}

func TestSetPasswordVerifier_ClearsRenewal(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+password_hash\s*=\s*\$2,\s*refresh_token_hash\s*=\s*NULL`).
		WithArgs("acc-1", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetPasswordVerifier(context.Background(), "acc-1", "new-hash"))
}

func TestUpdate_Deactivate(t *testing.T) {
	store, mock := newStoreWithMock(t)

	inactive := false
	mock.ExpectQuery(`(?s)^UPDATE\s+accounts\s+SET.*CASE.*RETURNING\s+id,`).
		WithArgs("acc-1", sql.NullString{}, sql.NullString{}, sql.NullString{}, sql.NullBool{Bool: false, Valid: true}).
		WillReturnRows(aliceRow(nil))

	a, err := store.Update(context.Background(), "acc-1", auth.AccountUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, a.HasLiveSession())
}

func TestUpdate_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	name := " Alicia "
	mock.ExpectQuery(`(?s)^UPDATE\s+accounts\s+SET`).
		WithArgs("ghost", sql.NullString{String: "Alicia", Valid: true}, sql.NullString{}, sql.NullString{}, sql.NullBool{}).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Update(context.Background(), "ghost", auth.AccountUpdate{FirstName: &name})
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestList(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`^SELECT\s+id,.*FROM\s+accounts\s+ORDER\s+BY\s+created_at\s+ASC,\s*email\s+ASC$`).
		WillReturnRows(aliceRow(nil))

	profiles, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "alice@example.com", profiles[0].Email)
}

func TestDeleteAndCount(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`^DELETE\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+accounts`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT\s+COUNT\(\*\)\s+FROM\s+accounts$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	ctx := context.Background()
	require.NoError(t, store.Delete(ctx, "acc-1"))
	assert.ErrorIs(t, store.Delete(ctx, "ghost"), auth.ErrAccountNotFound)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
