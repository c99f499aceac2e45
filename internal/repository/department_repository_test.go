package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mksu-dev/clearance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func departmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "code", "department_type", "head_email", "description", "active", "approval_order", "created_at", "updated_at"})
}

func TestDepartmentRepositoryListActiveOrdered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	now := time.Now()
	rows := departmentRows().
		AddRow("dept-1", "Finance", "FIN", "FINANCE", "finance@mksu.test", "", true, 1, now, now).
		AddRow("dept-2", "Library", "LIB", "LIBRARY", "library@mksu.test", "", true, 2, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM departments WHERE active = true ORDER BY approval_order ASC, name ASC")).
		WillReturnRows(rows)

	departments, err := repo.ListActiveOrdered(context.Background())
	require.NoError(t, err)
	require.Len(t, departments, 2)
	assert.Equal(t, "Finance", departments[0].Name)
	assert.Equal(t, 1, departments[0].ApprovalOrder)
	assert.Equal(t, "Library", departments[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM departments WHERE active = true")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestDepartmentRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM departments WHERE code = $1")).
		WithArgs("FIN").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "FIN", "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM departments WHERE code = $1")).
		WithArgs("NOPE").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByCode(context.Background(), "NOPE", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDepartmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO departments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	department := &models.Department{
		Name:          "Hostel",
		Code:          "HST",
		Type:          models.DepartmentTypeHostel,
		Active:        true,
		ApprovalOrder: 4,
	}
	err := repo.Create(context.Background(), department)
	require.NoError(t, err)
	assert.NotEmpty(t, department.ID)
	assert.False(t, department.CreatedAt.IsZero())
}
