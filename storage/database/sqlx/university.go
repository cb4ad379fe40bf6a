package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core/university"
)

const universitiesNameKey = "universities_name_key"

type universityRepository struct {
	db *sqlx.DB
}

var _ university.Repository = (*universityRepository)(nil) // interface compliance check

func NewUniversityRepository(db *sqlx.DB) university.Repository {
	return &universityRepository{db: db}
}

type universityRow struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r universityRow) toUniversity() university.University {
	return university.University{
		ID:        r.ID,
		Name:      r.Name,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newUniversityRow(u university.University) universityRow {
	return universityRow(u)
}

func (repo *universityRepository) CreateUniversity(ctx context.Context, u university.University) (university.University, error) {
	rows, err := repo.db.NamedQueryContext(ctx, `
		INSERT INTO universities (name, is_active, created_at, updated_at)
		VALUES (:name, :is_active, :created_at, :updated_at)
		RETURNING id`,
		newUniversityRow(u),
	)
	if err != nil {
		if isUniqueViolation(err, universitiesNameKey) {
			return university.University{}, university.ErrNameExists
		}
		return university.University{}, errors.Wrap(err, "inserting university")
	}
	defer func() { _ = rows.Close() }()

	if rows.Next() {
		if err = rows.Scan(&u.ID); err != nil {
			return university.University{}, errors.Wrap(err, "scanning university id")
		}
	}
	return u, errors.Wrap(rows.Err(), "inserting university")
}

func (repo *universityRepository) GetUniversityByID(ctx context.Context, id int) (university.University, error) {
	var row universityRow
	err := repo.db.GetContext(ctx, &row, "SELECT id, name, is_active, created_at, updated_at FROM universities WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return university.University{}, university.ErrNotFound
		}
		return university.University{}, errors.Wrap(err, "selecting university")
	}
	return row.toUniversity(), nil
}

func (repo *universityRepository) ListUniversities(ctx context.Context, activeOnly bool) ([]university.University, error) {
	q := "SELECT id, name, is_active, created_at, updated_at FROM universities"
	if activeOnly {
		q += " WHERE is_active"
	}
	var rows []universityRow
	if err := repo.db.SelectContext(ctx, &rows, q+" ORDER BY name ASC"); err != nil {
		return nil, errors.Wrap(err, "selecting universities")
	}
	unis := make([]university.University, len(rows))
	for i, row := range rows {
		unis[i] = row.toUniversity()
	}
	return unis, nil
}

func (repo *universityRepository) UpdateUniversity(ctx context.Context, u university.University) (university.University, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE universities SET name = :name, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		newUniversityRow(u),
	)
	if err != nil {
		if isUniqueViolation(err, universitiesNameKey) {
			return university.University{}, university.ErrNameExists
		}
		return university.University{}, errors.Wrap(err, "updating university")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return university.University{}, university.ErrNotFound
	}
	return u, nil
}
