package profile

import (
	"context"
	"fmt"
	"net/mail"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
)

const AvatarMaxSize = 2 << 20 // 2 MB

var (
	avatarExts = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}

	// errors
	ErrNotFound          = core.NewAppError(core.KindNotFound, "profile.not_found", "profile not found")
	ErrExists            = core.NewAppError(core.KindConflict, "profile.exists", "profile already exists")
	ErrAlreadyActive     = core.NewAppError(core.KindConflict, "profile.already_active", "profile is already active")
	ErrInvalidUniversity = core.NewAppError(core.KindValidation, "profile.invalid_university", "invalid university")
	ErrAvatarInvalid     = core.NewAppError(core.KindValidation, "profile.avatar_invalid", "unsupported avatar type")
	ErrAvatarTooLarge    = core.NewAppError(core.KindValidation, "profile.avatar_too_large", "avatar too large")
	ErrAvatarUnavailable = core.NewAppError(core.KindSystem, "profile.avatar_unavailable", "avatar storage is not configured")
)

type (
	Repository interface {
		// CreateProfile returns ErrExists when the user already has a profile.
		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		GetProfileByUserID(ctx context.Context, userID string) (Profile, error)
		UpdateProfile(ctx context.Context, p Profile) (Profile, error)
		// QueryProfiles applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of full name, nickname or company.
		QueryProfiles(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Profile, int, error)
		CountProfilesByStatus(ctx context.Context) (map[string]int, error)
	}

	ServiceInterface interface {
		// Create adds the Pending profile of a freshly registered user.
		Create(ctx context.Context, usr user.User, np NewProfile) (Profile, error)
		Get(ctx context.Context, actor authz.Subject, userID string) (Profile, error)
		Update(ctx context.Context, actor authz.Subject, userID string, up UpdateProfile) (Profile, error)
		SetAvatar(ctx context.Context, actor authz.Subject, userID string, avatar Avatar) (Profile, error)
		Approve(ctx context.Context, actor authz.Subject, userID string) (Profile, error)
		Reject(ctx context.Context, actor authz.Subject, userID, reason string) (Profile, error)
		Query(ctx context.Context, actor authz.Subject, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Profile, int, error)
		CountByStatus(ctx context.Context, actor authz.Subject) (map[string]int, error)
	}

	Deps struct {
		Repo         Repository
		Universities university.Repository
		Users        user.Repository
		MailSvc      core.EmailService
		Objects      core.ObjectStore // optional
		Publisher    core.Publisher
		Pages        core.Revalidator
		Logger       core.Logger
	}

	service struct {
		Deps
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(deps Deps) ServiceInterface {
	return &service{Deps: deps}
}

func (svc *service) revalidate(ctx context.Context, paths ...string) {
	if err := svc.Pages.Revalidate(ctx, paths...); err != nil {
		svc.Logger.Warn(fmt.Sprintf("revalidating %v: %v", paths, err), err)
	}
}

func (svc *service) publish(ctx context.Context, topic string, payload interface{}) {
	if err := svc.Publisher.Publish(ctx, topic, payload); err != nil {
		svc.Logger.Warn(fmt.Sprintf("publishing %s: %v", topic, err), err)
	}
}

// present fills the computed fields of p.
func (svc *service) present(ctx context.Context, p Profile) Profile {
	p.Completeness = p.ComputeCompleteness()
	if p.AvatarKey != "" && svc.Objects != nil {
		url, err := svc.Objects.URL(ctx, p.AvatarKey)
		if err != nil {
			svc.Logger.Warn(fmt.Sprintf("presigning avatar %s: %v", p.AvatarKey, err), err)
		}
		p.AvatarURL = url
	}
	return p
}

// checkUniversity ensures id references an active university; 0 means none.
func (svc *service) checkUniversity(ctx context.Context, id, current int) error {
	if id == 0 || id == current {
		return nil
	}
	uni, err := svc.Universities.GetUniversityByID(ctx, id)
	if err != nil {
		if errors.Is(err, university.ErrNotFound) {
			return ErrInvalidUniversity
		}
		return errors.Wrap(err, "finding university")
	}
	if !uni.IsActive {
		return ErrInvalidUniversity
	}
	return nil
}

func (svc *service) Create(ctx context.Context, usr user.User, np NewProfile) (Profile, error) {
	if err := svc.checkUniversity(ctx, np.UniversityID, 0); err != nil {
		return Profile{}, err
	}
	if np.FullName == "" {
		np.FullName = usr.Name
	}

	now := time.Now().UTC()
	p, err := svc.Repo.CreateProfile(ctx, Profile{
		UserID:         usr.ID,
		FullName:       np.FullName,
		Phone:          np.Phone,
		UniversityID:   np.UniversityID,
		EntryYear:      np.EntryYear,
		GraduationYear: np.GraduationYear,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Profile{}, err
	}
	svc.revalidate(ctx, core.PathAdmin, core.PathAdminUsers)
	return svc.present(ctx, p), nil
}

func (svc *service) get(ctx context.Context, actor authz.Subject, userID string, rule func(authz.Subject, string) bool) (Profile, error) {
	if actor == nil {
		return Profile{}, core.ErrUnauthenticated
	}
	if !rule(actor, userID) {
		return Profile{}, core.ErrForbidden
	}
	return svc.Repo.GetProfileByUserID(ctx, userID)
}

func (svc *service) Get(ctx context.Context, actor authz.Subject, userID string) (Profile, error) {
	p, err := svc.get(ctx, actor, userID, authz.CanViewProfile)
	if err != nil {
		return Profile{}, err
	}
	return svc.present(ctx, p), nil
}

func (svc *service) Update(ctx context.Context, actor authz.Subject, userID string, up UpdateProfile) (Profile, error) {
	p, err := svc.get(ctx, actor, userID, authz.CanEditProfile)
	if err != nil {
		return Profile{}, err
	}
	if up.UniversityID != nil {
		if err = svc.checkUniversity(ctx, *up.UniversityID, p.UniversityID); err != nil {
			return Profile{}, err
		}
	}

	up.apply(&p)
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.Repo.UpdateProfile(ctx, p); err != nil {
		return Profile{}, err
	}
	svc.revalidate(ctx, core.PathDashboard, core.PathAdminUsers)
	return svc.present(ctx, p), nil
}

func (svc *service) SetAvatar(ctx context.Context, actor authz.Subject, userID string, avatar Avatar) (Profile, error) {
	if svc.Objects == nil {
		return Profile{}, ErrAvatarUnavailable
	}
	p, err := svc.get(ctx, actor, userID, authz.CanEditProfile)
	if err != nil {
		return Profile{}, err
	}

	ext, ok := avatarExts[avatar.ContentType]
	if !ok {
		return Profile{}, ErrAvatarInvalid
	}
	if avatar.Size > AvatarMaxSize {
		return Profile{}, ErrAvatarTooLarge.WithData(map[string]interface{}{"MaxMB": AvatarMaxSize >> 20})
	}

	key := path.Join("avatars", userID, uuid.NewString()+ext)
	if err = svc.Objects.Put(ctx, key, avatar.Content, avatar.Size, avatar.ContentType); err != nil {
		return Profile{}, errors.Wrap(err, "storing avatar")
	}

	oldKey := p.AvatarKey
	p.AvatarKey = key
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.Repo.UpdateProfile(ctx, p); err != nil {
		if rmErr := svc.Objects.Remove(ctx, key); rmErr != nil {
			svc.Logger.Warn(fmt.Sprintf("removing avatar %s: %v", key, rmErr), rmErr)
		}
		return Profile{}, err
	}
	if oldKey != "" {
		if err = svc.Objects.Remove(ctx, oldKey); err != nil {
			svc.Logger.Warn(fmt.Sprintf("removing avatar %s: %v", oldKey, err), err)
		}
	}
	svc.revalidate(ctx, core.PathDashboard)
	return svc.present(ctx, p), nil
}

func (svc *service) Approve(ctx context.Context, actor authz.Subject, userID string) (Profile, error) {
	if err := authz.Require(actor, authz.CanManageMembers); err != nil {
		return Profile{}, err
	}
	p, err := svc.Repo.GetProfileByUserID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if p.Status == StatusActive {
		return Profile{}, ErrAlreadyActive
	}

	now := time.Now().UTC()
	p.Status = StatusActive
	p.ApprovedBy = actor.SubjectID()
	p.ApprovedAt = now
	p.UpdatedAt = now
	if p, err = svc.Repo.UpdateProfile(ctx, p); err != nil {
		return Profile{}, err
	}

	svc.notifyOwner(ctx, p, "Your membership has been approved", "profile_approved", "")
	svc.publish(ctx, core.TopicProfileApproved, map[string]interface{}{"user_id": p.UserID, "approved_by": p.ApprovedBy})
	svc.revalidate(ctx, core.PathAdmin, core.PathAdminUsers, core.PathDashboard)
	return svc.present(ctx, p), nil
}

func (svc *service) Reject(ctx context.Context, actor authz.Subject, userID, reason string) (Profile, error) {
	if err := authz.Require(actor, authz.CanManageMembers); err != nil {
		return Profile{}, err
	}
	p, err := svc.Repo.GetProfileByUserID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	p.Status = StatusRejected
	p.ApprovedBy = ""
	p.ApprovedAt = time.Time{}
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.Repo.UpdateProfile(ctx, p); err != nil {
		return Profile{}, err
	}

	reason = core.CleanString(reason)
	svc.notifyOwner(ctx, p, "Your membership request", "profile_rejected", reason)
	svc.publish(ctx, core.TopicProfileRejected, map[string]interface{}{"user_id": p.UserID, "reason": reason})
	svc.revalidate(ctx, core.PathAdmin, core.PathAdminUsers, core.PathDashboard)
	return svc.present(ctx, p), nil
}

// notifyOwner emails the profile owner; failures are logged only.
func (svc *service) notifyOwner(ctx context.Context, p Profile, subject, tmpl, reason string) {
	usr, err := svc.Users.GetUserByID(ctx, p.UserID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("finding user %s: %v", p.UserID, err), err)
		return
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.FullName, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"Name":   p.FullName,
			"Reason": reason,
		},
	})
}

func (svc *service) Query(ctx context.Context, actor authz.Subject, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Profile, int, error) {
	if err := authz.Require(actor, authz.CanManageMembers); err != nil {
		return nil, 0, err
	}
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if page == nil {
		page = new(core.Pagination)
	}
	page.Clean()

	profiles, count, err := svc.Repo.QueryProfiles(ctx, filter, ordering, page)
	if err != nil {
		return nil, 0, err
	}
	for i := range profiles {
		profiles[i] = svc.present(ctx, profiles[i])
	}
	return profiles, count, nil
}

func (svc *service) CountByStatus(ctx context.Context, actor authz.Subject) (map[string]int, error) {
	if err := authz.Require(actor, authz.CanAccessAdmin); err != nil {
		return nil, err
	}
	return svc.Repo.CountProfilesByStatus(ctx)
}
