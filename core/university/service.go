package university

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
)

var (
	// errors
	ErrNotFound   = core.NewAppError(core.KindNotFound, "university.not_found", "university not found")
	ErrNameExists = core.NewAppError(core.KindConflict, "university.exists", "a university with this name already exists")
)

type (
	Repository interface {
		// CreateUniversity returns ErrNameExists when the name is taken, active or not.
		CreateUniversity(ctx context.Context, u University) (University, error)
		GetUniversityByID(ctx context.Context, id int) (University, error)
		// ListUniversities returns universities ordered by name.
		ListUniversities(ctx context.Context, activeOnly bool) ([]University, error)
		// UpdateUniversity saves the name and the active flag; it returns ErrNameExists when the name is taken.
		UpdateUniversity(ctx context.Context, u University) (University, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor authz.Subject, nu NewUniversity) (University, error)
		Update(ctx context.Context, actor authz.Subject, id int, uu UpdateUniversity) (University, error)
		Delete(ctx context.Context, actor authz.Subject, id int) error
		Restore(ctx context.Context, actor authz.Subject, id int) (University, error)
		ListActive(ctx context.Context) ([]University, error)
		List(ctx context.Context, actor authz.Subject) ([]University, error)
		GetByID(ctx context.Context, id int) (University, error)
	}

	service struct {
		repo   Repository
		pages  core.Revalidator
		logger core.Logger
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, pages core.Revalidator, logger core.Logger) ServiceInterface {
	return &service{repo: repo, pages: pages, logger: logger}
}

// revalidate refreshes the views listing universities.
func (svc *service) revalidate(ctx context.Context) {
	paths := []string{core.PathAdminMasterData, core.PathRegister}
	if err := svc.pages.Revalidate(ctx, paths...); err != nil {
		svc.logger.Warn(fmt.Sprintf("revalidating %v: %v", paths, err), err)
	}
}

func (svc *service) Create(ctx context.Context, actor authz.Subject, nu NewUniversity) (University, error) {
	if err := authz.Require(actor, authz.CanManageMasterData); err != nil {
		return University{}, err
	}
	name := NormalizeName(nu.Name)

	now := time.Now().UTC()
	u, err := svc.repo.CreateUniversity(ctx, University{
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return University{}, err
	}
	svc.revalidate(ctx)
	return u, nil
}

func (svc *service) Update(ctx context.Context, actor authz.Subject, id int, uu UpdateUniversity) (University, error) {
	if err := authz.Require(actor, authz.CanManageMasterData); err != nil {
		return University{}, err
	}
	name := NormalizeName(uu.Name)

	u, err := svc.repo.GetUniversityByID(ctx, id)
	if err != nil {
		return University{}, err
	}
	if u.Name == name {
		return u, nil
	}
	u.Name = name
	u.UpdatedAt = time.Now().UTC()
	if u, err = svc.repo.UpdateUniversity(ctx, u); err != nil {
		return University{}, err
	}
	svc.revalidate(ctx)
	return u, nil
}

// Delete deactivates the university; profiles keep referencing it.
func (svc *service) Delete(ctx context.Context, actor authz.Subject, id int) error {
	_, err := svc.setActive(ctx, actor, id, false)
	return err
}

func (svc *service) Restore(ctx context.Context, actor authz.Subject, id int) (University, error) {
	return svc.setActive(ctx, actor, id, true)
}

func (svc *service) setActive(ctx context.Context, actor authz.Subject, id int, active bool) (University, error) {
	if err := authz.Require(actor, authz.CanManageMasterData); err != nil {
		return University{}, err
	}
	u, err := svc.repo.GetUniversityByID(ctx, id)
	if err != nil {
		return University{}, err
	}
	if u.IsActive == active {
		return u, nil
	}
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	if u, err = svc.repo.UpdateUniversity(ctx, u); err != nil {
		return University{}, errors.Wrap(err, "updating university")
	}
	svc.revalidate(ctx)
	return u, nil
}

func (svc *service) ListActive(ctx context.Context) ([]University, error) {
	return svc.repo.ListUniversities(ctx, true)
}

func (svc *service) List(ctx context.Context, actor authz.Subject) ([]University, error) {
	if err := authz.Require(actor, authz.CanManageMasterData); err != nil {
		return nil, err
	}
	return svc.repo.ListUniversities(ctx, false)
}

func (svc *service) GetByID(ctx context.Context, id int) (University, error) {
	return svc.repo.GetUniversityByID(ctx, id)
}
