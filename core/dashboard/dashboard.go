// Package dashboard assembles the member dashboard and the admin statistics.
package dashboard

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
)

type (
	Member struct {
		Profile        profile.Profile       `json:"profile"`
		HasProfile     bool                  `json:"has_profile"`
		Attendance     event.Attendance      `json:"attendance"`
		UpcomingEvents []event.Participation `json:"upcoming_events"`
	}

	AdminStats struct {
		Profiles   map[string]int   `json:"profiles"`
		Events     map[string]int   `json:"events"`
		Attendance event.Attendance `json:"attendance"`
	}

	ServiceInterface interface {
		Member(ctx context.Context, actor authz.Subject) (Member, error)
		Admin(ctx context.Context, actor authz.Subject) (AdminStats, error)
	}

	service struct {
		profiles profile.ServiceInterface
		events   event.ServiceInterface
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(profiles profile.ServiceInterface, events event.ServiceInterface) ServiceInterface {
	return &service{profiles: profiles, events: events}
}

func (svc *service) Member(ctx context.Context, actor authz.Subject) (Member, error) {
	if actor == nil {
		return Member{}, core.ErrUnauthenticated
	}
	var dash Member

	p, err := svc.profiles.Get(ctx, actor, actor.SubjectID())
	switch {
	case err == nil:
		dash.Profile, dash.HasProfile = p, true
	case !errors.Is(err, profile.ErrNotFound):
		return Member{}, errors.Wrap(err, "loading profile")
	}

	participations, err := svc.events.Participations(ctx, actor, actor.SubjectID())
	if err != nil {
		return Member{}, errors.Wrap(err, "loading participations")
	}
	now := event.NowFunc()
	var past []event.Participant
	dash.UpcomingEvents = make([]event.Participation, 0)
	for _, part := range participations {
		if part.Event.StartsAt.Before(now) {
			past = append(past, part.Participant)
			if !part.Event.EndsAt.IsZero() && part.Event.EndsAt.After(now) && part.Status != event.ParticipantCancelled {
				// ongoing
				dash.UpcomingEvents = append(dash.UpcomingEvents, part)
			}
			continue
		}
		if part.Status != event.ParticipantCancelled && part.Event.Status != event.StatusCancelled {
			dash.UpcomingEvents = append(dash.UpcomingEvents, part)
		}
	}
	dash.Attendance = event.ComputeAttendance(past)
	return dash, nil
}

func (svc *service) Admin(ctx context.Context, actor authz.Subject) (AdminStats, error) {
	if err := authz.Require(actor, authz.CanAccessAdmin); err != nil {
		return AdminStats{}, err
	}
	profiles, err := svc.profiles.CountByStatus(ctx, actor)
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "counting profiles")
	}
	events, err := svc.events.CountByStatus(ctx, actor)
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "counting events")
	}
	att, err := svc.events.OverallAttendance(ctx, actor)
	if err != nil {
		return AdminStats{}, errors.Wrap(err, "computing attendance")
	}
	return AdminStats{Profiles: profiles, Events: events, Attendance: att}, nil
}

