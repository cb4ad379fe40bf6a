package core

import (
	"context"
	"io"
)

// Paths of the rendered views that mutations revalidate.
const (
	PathDashboard       = "/dashboard"
	PathRegister        = "/register"
	PathAdmin           = "/admin"
	PathAdminUsers      = "/admin/users"
	PathAdminEvents     = "/admin/events"
	PathAdminAttendance = "/admin/attendance"
	PathAdminMasterData = "/admin/master-data"
)

// Topics of the published domain events.
const (
	TopicProfileApproved       = "profile.approved"
	TopicProfileRejected       = "profile.rejected"
	TopicEventCreated          = "event.created"
	TopicEventDeleted          = "event.deleted"
	TopicParticipantRegistered = "participant.registered"
	TopicParticipantCheckedIn  = "participant.checked_in"
)

type (
	// Revalidator invalidates the cached renderings of the given paths.
	Revalidator interface {
		Revalidate(ctx context.Context, paths ...string) error
	}

	// PageCache stores rendered views keyed by path.
	PageCache interface {
		Revalidator
		Get(ctx context.Context, path, variant string) ([]byte, bool, error)
		Set(ctx context.Context, path, variant string, page []byte) error
	}

	// Publisher publishes domain events to interested consumers.
	Publisher interface {
		Publish(ctx context.Context, topic string, payload interface{}) error
		Close() error
	}

	// ObjectStore keeps uploaded files such as profile avatars.
	ObjectStore interface {
		Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
		URL(ctx context.Context, key string) (string, error)
		Remove(ctx context.Context, key string) error
	}

	// Localizer renders the message identified by key for the given locale.
	Localizer interface {
		T(locale, key string, data map[string]interface{}) string
	}
)

// Notification is a user-facing message queued for rendering.
type Notification struct {
	Level   string
	Message string
}

const (
	NotifyInfo    = "info"
	NotifySuccess = "success"
	NotifyError   = "error"
)

// Notifier accepts notifications from any goroutine.
type Notifier interface {
	Notify(n Notification)
}

// NopRevalidator is used when no page cache is configured.
type NopRevalidator struct{}

func (NopRevalidator) Revalidate(context.Context, ...string) error { return nil }
