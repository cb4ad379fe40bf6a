package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/alumni/core/university"
)

type universityRepository struct {
	db *universityTable
}

var _ university.Repository = (*universityRepository)(nil) // interface compliance check

func NewUniversityRepository(db *DB) university.Repository {
	return &universityRepository{db: db.university}
}

// nameTaken reports whether another university, active or not, has this name.
func (repo *universityRepository) nameTaken(name string, id int) bool {
	for _, u := range repo.db.table {
		if u.Name == name && u.ID != id {
			return true
		}
	}
	return false
}

func (repo *universityRepository) CreateUniversity(_ context.Context, u university.University) (university.University, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.nameTaken(u.Name, 0) {
		return university.University{}, university.ErrNameExists
	}
	repo.db.pkCount++
	u.ID = repo.db.pkCount
	repo.db.table[u.ID] = &u
	return u, nil
}

func (repo *universityRepository) GetUniversityByID(_ context.Context, id int) (university.University, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if u, ok := repo.db.table[id]; ok {
		return *u, nil
	}
	return university.University{}, university.ErrNotFound
}

func (repo *universityRepository) ListUniversities(_ context.Context, activeOnly bool) ([]university.University, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	unis := make([]university.University, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		if activeOnly && !u.IsActive {
			continue
		}
		unis = append(unis, *u)
	}
	sort.Slice(unis, func(i, j int) bool { return unis[i].Name < unis[j].Name })
	return unis, nil
}

func (repo *universityRepository) UpdateUniversity(_ context.Context, u university.University) (university.University, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[u.ID]; !ok {
		return university.University{}, university.ErrNotFound
	}
	if repo.nameTaken(u.Name, u.ID) {
		return university.University{}, university.ErrNameExists
	}
	repo.db.table[u.ID] = &u
	return u, nil
}
