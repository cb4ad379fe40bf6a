package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/user"
)

const profileColumns = "user_id, full_name, nickname, phone, birth_place, birth_date, gender, university_id, faculty, major, " +
	"student_number, entry_year, graduation_year, address, city, province, occupation, company, job_title, industry, " +
	"avatar_key, status, approved_by, approved_at, created_at, updated_at"

const (
	profilesPKey         = "profiles_pkey"
	profilesUserFKey     = "profiles_user_id_fkey"
	profileBirthDateForm = "2006-01-02"
)

var profileOrdering = map[string]string{
	"full_name":       "full_name",
	"status":          "status",
	"graduation_year": "graduation_year",
	"city":            "city",
	"created_at":      "created_at",
	"updated_at":      "updated_at",
}

type profileRow struct {
	UserID         string      `db:"user_id"`
	FullName       string      `db:"full_name"`
	Nickname       string      `db:"nickname"`
	Phone          string      `db:"phone"`
	BirthPlace     string      `db:"birth_place"`
	BirthDate      null.Time   `db:"birth_date"`
	Gender         string      `db:"gender"`
	UniversityID   null.Int    `db:"university_id"`
	Faculty        string      `db:"faculty"`
	Major          string      `db:"major"`
	StudentNumber  string      `db:"student_number"`
	EntryYear      int         `db:"entry_year"`
	GraduationYear int         `db:"graduation_year"`
	Address        string      `db:"address"`
	City           string      `db:"city"`
	Province       string      `db:"province"`
	Occupation     string      `db:"occupation"`
	Company        string      `db:"company"`
	JobTitle       string      `db:"job_title"`
	Industry       string      `db:"industry"`
	AvatarKey      string      `db:"avatar_key"`
	Status         string      `db:"status"`
	ApprovedBy     null.String `db:"approved_by"`
	ApprovedAt     null.Time   `db:"approved_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func newProfileRow(p profile.Profile) profileRow {
	return profileRow{
		UserID:         p.UserID,
		FullName:       p.FullName,
		Nickname:       p.Nickname,
		Phone:          p.Phone,
		BirthPlace:     p.BirthPlace,
		BirthDate:      null.NewTime(p.BirthDate, !p.BirthDate.IsZero()),
		Gender:         p.Gender,
		UniversityID:   null.NewInt(p.UniversityID, p.UniversityID != 0),
		Faculty:        p.Faculty,
		Major:          p.Major,
		StudentNumber:  p.StudentNumber,
		EntryYear:      p.EntryYear,
		GraduationYear: p.GraduationYear,
		Address:        p.Address,
		City:           p.City,
		Province:       p.Province,
		Occupation:     p.Occupation,
		Company:        p.Company,
		JobTitle:       p.JobTitle,
		Industry:       p.Industry,
		AvatarKey:      p.AvatarKey,
		Status:         p.Status,
		ApprovedBy:     null.NewString(p.ApprovedBy, p.ApprovedBy != ""),
		ApprovedAt:     null.NewTime(p.ApprovedAt, !p.ApprovedAt.IsZero()),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (r profileRow) toProfile() profile.Profile {
	p := profile.Profile{
		UserID:         r.UserID,
		FullName:       r.FullName,
		Nickname:       r.Nickname,
		Phone:          r.Phone,
		BirthPlace:     r.BirthPlace,
		Gender:         r.Gender,
		UniversityID:   r.UniversityID.Int,
		Faculty:        r.Faculty,
		Major:          r.Major,
		StudentNumber:  r.StudentNumber,
		EntryYear:      r.EntryYear,
		GraduationYear: r.GraduationYear,
		Address:        r.Address,
		City:           r.City,
		Province:       r.Province,
		Occupation:     r.Occupation,
		Company:        r.Company,
		JobTitle:       r.JobTitle,
		Industry:       r.Industry,
		AvatarKey:      r.AvatarKey,
		Status:         r.Status,
		ApprovedBy:     r.ApprovedBy.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.BirthDate.Valid {
		// DATE columns come back at midnight UTC
		p.BirthDate, _ = time.Parse(profileBirthDateForm, r.BirthDate.Time.Format(profileBirthDateForm))
	}
	if r.ApprovedAt.Valid {
		p.ApprovedAt = r.ApprovedAt.Time.UTC()
	}
	return p
}

type profileRepository struct {
	db *sqlx.DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *sqlx.DB) profile.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if !isUUID(p.UserID) {
		return profile.Profile{}, user.ErrNotFound
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:user_id, :full_name, :nickname, :phone, :birth_place, :birth_date, :gender, :university_id, :faculty,
			:major, :student_number, :entry_year, :graduation_year, :address, :city, :province, :occupation, :company,
			:job_title, :industry, :avatar_key, :status, :approved_by, :approved_at, :created_at, :updated_at)`,
		newProfileRow(p),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, profilesPKey):
			return profile.Profile{}, profile.ErrExists
		case isForeignKeyViolation(err, profilesUserFKey):
			return profile.Profile{}, user.ErrNotFound
		}
		return profile.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return p, nil
}

func (repo *profileRepository) GetProfileByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	if !isUUID(userID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	var row profileRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+profileColumns+" FROM profiles WHERE user_id = $1", userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, errors.Wrap(err, "selecting profile")
	}
	return row.toProfile(), nil
}

func (repo *profileRepository) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if !isUUID(p.UserID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE profiles
		SET full_name = :full_name, nickname = :nickname, phone = :phone, birth_place = :birth_place,
			birth_date = :birth_date, gender = :gender, university_id = :university_id, faculty = :faculty,
			major = :major, student_number = :student_number, entry_year = :entry_year,
			graduation_year = :graduation_year, address = :address, city = :city, province = :province,
			occupation = :occupation, company = :company, job_title = :job_title, industry = :industry,
			avatar_key = :avatar_key, status = :status, approved_by = :approved_by, approved_at = :approved_at,
			updated_at = :updated_at
		WHERE user_id = :user_id`,
		newProfileRow(p),
	)
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "updating profile")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	p.AvatarURL, p.Completeness = "", 0 // computed
	return p, nil
}

func (repo *profileRepository) QueryProfiles(ctx context.Context, filter *profile.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]profile.Profile, int, error) {
	var w where
	if filter != nil {
		w.addSearch(filter.Search, "full_name", "nickname", "company")
		if len(filter.Statuses) > 0 {
			if err := w.addIn("status IN (?)", filter.Statuses); err != nil {
				return nil, 0, err
			}
		}
		if filter.UniversityID != 0 {
			w.add("university_id = ?", filter.UniversityID)
		}
		if filter.GraduationYear != 0 {
			w.add("graduation_year = ?", filter.GraduationYear)
		}
		if filter.City != "" {
			w.add("LOWER(city) = LOWER(?)", filter.City)
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind("SELECT COUNT(*) FROM profiles"+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting profiles")
	}

	limit, limitArgs := pageClause(page)
	q := "SELECT " + profileColumns + " FROM profiles" + w.String() +
		orderClause(ordering, profileOrdering, core.DBOrdering{Field: "full_name", Ascending: true}) + limit
	var rows []profileRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), append(w.args, limitArgs...)...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting profiles")
	}

	profiles := make([]profile.Profile, len(rows))
	for i, row := range rows {
		profiles[i] = row.toProfile()
	}
	return profiles, count, nil
}

func (repo *profileRepository) CountProfilesByStatus(ctx context.Context) (map[string]int, error) {
	return countByStatus(ctx, repo.db, "profiles", profile.AllStatuses)
}

// countByStatus counts the rows of table per status, every known status included.
func countByStatus(ctx context.Context, db *sqlx.DB, table string, statuses []string) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := db.SelectContext(ctx, &rows, "SELECT status, COUNT(*) AS count FROM "+table+" GROUP BY status"); err != nil {
		return nil, errors.Wrapf(err, "counting %s by status", table)
	}

	counts := make(map[string]int, len(statuses))
	for _, status := range statuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
