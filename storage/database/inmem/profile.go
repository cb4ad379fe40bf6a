package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/user"
)

var profileOrdering = comparators[profile.Profile]{
	"full_name":       func(a, b profile.Profile) int { return strings.Compare(a.FullName, b.FullName) },
	"status":          func(a, b profile.Profile) int { return strings.Compare(a.Status, b.Status) },
	"graduation_year": func(a, b profile.Profile) int { return cmpInt(a.GraduationYear, b.GraduationYear) },
	"city":            func(a, b profile.Profile) int { return strings.Compare(a.City, b.City) },
	"created_at":      func(a, b profile.Profile) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"updated_at":      func(a, b profile.Profile) int { return cmpTime(a.UpdatedAt, b.UpdatedAt) },
}

type profileRepository struct {
	db *DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.profile.Lock()
	defer repo.db.profile.Unlock()

	if _, ok := repo.db.user.table[p.UserID]; !ok {
		return profile.Profile{}, user.ErrNotFound
	}
	if _, ok := repo.db.profile.table[p.UserID]; ok {
		return profile.Profile{}, profile.ErrExists
	}
	repo.db.profile.table[p.UserID] = &p
	return p, nil
}

func (repo *profileRepository) GetProfileByUserID(_ context.Context, userID string) (profile.Profile, error) {
	repo.db.profile.RLock()
	defer repo.db.profile.RUnlock()

	if p, ok := repo.db.profile.table[userID]; ok {
		return *p, nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	repo.db.profile.Lock()
	defer repo.db.profile.Unlock()

	if _, ok := repo.db.profile.table[p.UserID]; !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	p.AvatarURL, p.Completeness = "", 0 // computed
	repo.db.profile.table[p.UserID] = &p
	return p, nil
}

func (repo *profileRepository) QueryProfiles(_ context.Context, filter *profile.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]profile.Profile, int, error) {
	repo.db.profile.RLock()
	defer repo.db.profile.RUnlock()

	profiles := make([]profile.Profile, 0)
	for _, p := range repo.db.profile.table {
		if filter != nil {
			if filter.Search != "" && !(containsFold(p.FullName, filter.Search) || containsFold(p.Nickname, filter.Search) || containsFold(p.Company, filter.Search)) {
				continue
			}
			if len(filter.Statuses) > 0 && !inStrings(p.Status, filter.Statuses) {
				continue
			}
			if filter.UniversityID != 0 && p.UniversityID != filter.UniversityID {
				continue
			}
			if filter.GraduationYear != 0 && p.GraduationYear != filter.GraduationYear {
				continue
			}
			if filter.City != "" && !strings.EqualFold(p.City, filter.City) {
				continue
			}
		}
		profiles = append(profiles, *p)
	}

	orderBy(profiles, ordering, profileOrdering, core.DBOrdering{Field: "full_name", Ascending: true})
	return paginate(profiles, page), len(profiles), nil
}

func (repo *profileRepository) CountProfilesByStatus(_ context.Context) (map[string]int, error) {
	repo.db.profile.RLock()
	defer repo.db.profile.RUnlock()

	counts := make(map[string]int, len(profile.AllStatuses))
	for _, status := range profile.AllStatuses {
		counts[status] = 0
	}
	for _, p := range repo.db.profile.table {
		counts[p.Status]++
	}
	return counts, nil
}
