package event

import (
	"context"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/authz"
)

var (
	// errors
	ErrNotFound            = core.NewAppError(core.KindNotFound, "event.not_found", "event not found")
	ErrSlugExists          = core.NewAppError(core.KindConflict, "event.slug_exists", "an event with this title already exists")
	ErrParticipantNotFound = core.NewAppError(core.KindNotFound, "participant.not_found", "participant not found")
	ErrInvalidStatus       = core.NewAppError(core.KindValidation, "participant.invalid_status", "invalid participant status")
	ErrAlreadyRegistered   = core.NewAppError(core.KindConflict, "registration.exists", "already registered")
	ErrRegistrationClosed  = core.NewAppError(core.KindValidation, "registration.closed", "registration is closed")
	ErrNotRegistered       = core.NewAppError(core.KindNotFound, "checkin.not_registered", "not registered for this event")
	ErrCheckInWaitingList  = core.NewAppError(core.KindValidation, "checkin.waiting_list", "participant is on the waiting list")
	ErrCheckInCancelled    = core.NewAppError(core.KindValidation, "checkin.cancelled", "participation was cancelled")
	ErrCheckInPermitted    = core.NewAppError(core.KindValidation, "checkin.permitted", "participant is excused")

	// check-in attempts by outcome
	checkInAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alumni",
		Name:      "checkin_attempts_total",
		Help:      "Self check-in attempts by result.",
	}, []string{"result"})

	NowFunc = time.Now // mockable
)

// checkInBlockers are the participant statuses that forbid a check-in.
var checkInBlockers = map[string]*core.AppError{
	ParticipantWaitingList: ErrCheckInWaitingList,
	ParticipantCancelled:   ErrCheckInCancelled,
	ParticipantPermitted:   ErrCheckInPermitted,
}

type (
	Repository interface {
		// CreateEvent returns ErrSlugExists when the slug is taken.
		CreateEvent(ctx context.Context, evt Event) (Event, error)
		GetEventByID(ctx context.Context, id string) (Event, error)
		UpdateEvent(ctx context.Context, evt Event) (Event, error)
		// DeleteEventsByID deletes the events along with their participants.
		DeleteEventsByID(ctx context.Context, ids ...string) error
		// QueryEvents applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of title, location or description.
		QueryEvents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Event, int, error)
		CountEventsByStatus(ctx context.Context) (map[string]int, error)

		// CreateParticipant returns ErrAlreadyRegistered when the user already has a row for the event.
		CreateParticipant(ctx context.Context, p Participant) (Participant, error)
		GetParticipant(ctx context.Context, eventID, userID string) (Participant, error)
		GetParticipantByID(ctx context.Context, id string) (Participant, error)
		UpdateParticipant(ctx context.Context, p Participant) (Participant, error)
		// ListParticipants returns the participants of the event, oldest registration first,
		// restricted to the given statuses if any.
		ListParticipants(ctx context.Context, eventID string, statuses ...string) ([]Participant, error)
		// ListParticipations returns the registrations of the user along with their events, by event start.
		ListParticipations(ctx context.Context, userID string) ([]Participation, error)
		CountParticipants(ctx context.Context, eventID string, statuses ...string) (int, error)
		// ListAllParticipants returns the participants of every event started before the given time.
		ListAllParticipants(ctx context.Context, startedBefore time.Time) ([]Participant, error)

		// CheckIn atomically marks the participant as checked in at the given time and clears its
		// sanction, unless it is already checked in or its status forbids it.
		// It returns the stored check-in time and whether this call applied it.
		CheckIn(ctx context.Context, participantID string, at time.Time) (time.Time, bool, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor authz.Subject, ne NewEvent) (Event, error)
		GetByID(ctx context.Context, id string) (Event, error)
		Update(ctx context.Context, actor authz.Subject, evt Event, ue UpdateEvent) (Event, error)
		Delete(ctx context.Context, actor authz.Subject, ids ...string) error
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Event, int, error)
		CountByStatus(ctx context.Context, actor authz.Subject) (map[string]int, error)

		Register(ctx context.Context, actor authz.Subject, eventID string) (Participant, error)
		CancelRegistration(ctx context.Context, actor authz.Subject, eventID string) (Participant, error)
		SetParticipantStatus(ctx context.Context, actor authz.Subject, eventID, participantID, status, note string) (Participant, error)
		Participants(ctx context.Context, actor authz.Subject, eventID string, statuses ...string) ([]Participant, error)
		Participations(ctx context.Context, actor authz.Subject, userID string) ([]Participation, error)
		SelfCheckIn(ctx context.Context, actor authz.Subject, eventID string) (CheckInResult, error)

		EventAttendance(ctx context.Context, actor authz.Subject, eventID string) (Attendance, error)
		MemberAttendance(ctx context.Context, actor authz.Subject, userID string) (Attendance, error)
		OverallAttendance(ctx context.Context, actor authz.Subject) (Attendance, error)
	}

	service struct {
		repo      Repository
		publisher core.Publisher
		pages     core.Revalidator
		logger    core.Logger
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, publisher core.Publisher, pages core.Revalidator, logger core.Logger) ServiceInterface {
	return &service{repo: repo, publisher: publisher, pages: pages, logger: logger}
}

func eventPath(id string) string {
	return core.PathAdminEvents + "/" + id
}

func (svc *service) revalidate(ctx context.Context, paths ...string) {
	if err := svc.pages.Revalidate(ctx, paths...); err != nil {
		svc.logger.Warn(fmt.Sprintf("revalidating %v: %v", paths, err), err)
	}
}

func (svc *service) publish(ctx context.Context, topic string, payload interface{}) {
	if err := svc.publisher.Publish(ctx, topic, payload); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing %s: %v", topic, err), err)
	}
}

// Events

func (svc *service) Create(ctx context.Context, actor authz.Subject, ne NewEvent) (Event, error) {
	if err := authz.Require(actor, authz.CanManageEvents); err != nil {
		return Event{}, err
	}

	now := time.Now().UTC()
	evt, err := svc.repo.CreateEvent(ctx, Event{
		Slug:        slug.Make(ne.Title),
		Title:       ne.Title,
		Description: ne.Description,
		Category:    ne.Category,
		Location:    ne.Location,
		StartsAt:    ne.StartsAt.UTC(),
		EndsAt:      ne.EndsAt.UTC(),
		Status:      ne.Status,
		Capacity:    ne.Capacity,
		CreatedBy:   actor.SubjectID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Event{}, err
	}
	svc.publish(ctx, core.TopicEventCreated, evt)
	svc.revalidate(ctx, core.PathAdminEvents, core.PathAdmin, core.PathDashboard)
	return evt, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEventByID(ctx, id)
}

func (svc *service) Update(ctx context.Context, actor authz.Subject, evt Event, ue UpdateEvent) (Event, error) {
	if err := authz.Require(actor, authz.CanManageEvents); err != nil {
		return Event{}, err
	}
	oldTitle := evt.Title
	ue.apply(&evt)
	if evt.Title != oldTitle {
		evt.Slug = slug.Make(evt.Title)
	}
	evt.UpdatedAt = time.Now().UTC()

	evt, err := svc.repo.UpdateEvent(ctx, evt)
	if err != nil {
		return Event{}, err
	}
	svc.revalidate(ctx, core.PathAdminEvents, eventPath(evt.ID), core.PathAdmin, core.PathDashboard)
	return evt, nil
}

func (svc *service) Delete(ctx context.Context, actor authz.Subject, ids ...string) error {
	if err := authz.Require(actor, authz.CanManageEvents); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := svc.repo.DeleteEventsByID(ctx, ids...); err != nil {
		return err
	}
	svc.publish(ctx, core.TopicEventDeleted, map[string]interface{}{"ids": ids})
	svc.revalidate(ctx, core.PathAdminEvents, core.PathAdmin, core.PathAdminAttendance, core.PathDashboard)
	return nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Event, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if page == nil {
		page = new(core.Pagination)
	}
	page.Clean()
	return svc.repo.QueryEvents(ctx, filter, ordering, page)
}

func (svc *service) CountByStatus(ctx context.Context, actor authz.Subject) (map[string]int, error) {
	if err := authz.Require(actor, authz.CanAccessAdmin); err != nil {
		return nil, err
	}
	return svc.repo.CountEventsByStatus(ctx)
}

// Participants

// Register signs the actor up for the event, on the waiting list when the event is full.
// A cancelled registration is reopened.
func (svc *service) Register(ctx context.Context, actor authz.Subject, eventID string) (Participant, error) {
	if err := authz.Require(actor, authz.CanRegisterForEvents); err != nil {
		return Participant{}, err
	}
	evt, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return Participant{}, err
	}
	if !evt.IsOpen() {
		return Participant{}, ErrRegistrationClosed
	}

	existing, err := svc.repo.GetParticipant(ctx, evt.ID, actor.SubjectID())
	switch {
	case err == nil && existing.Status != ParticipantCancelled:
		return Participant{}, ErrAlreadyRegistered
	case err != nil && !errors.Is(err, ErrParticipantNotFound):
		return Participant{}, errors.Wrap(err, "finding participant")
	}

	status := ParticipantRegistered
	if evt.Capacity > 0 {
		seated, err := svc.repo.CountParticipants(ctx, evt.ID, seatStatuses...)
		if err != nil {
			return Participant{}, errors.Wrap(err, "counting participants")
		}
		if seated >= evt.Capacity {
			status = ParticipantWaitingList
		}
	}

	now := time.Now().UTC()
	var p Participant
	if existing.ID != "" {
		existing.Status = status
		existing.RegisteredAt = now
		existing.UpdatedAt = now
		p, err = svc.repo.UpdateParticipant(ctx, existing)
	} else {
		p, err = svc.repo.CreateParticipant(ctx, Participant{
			EventID:      evt.ID,
			UserID:       actor.SubjectID(),
			Status:       status,
			RegisteredAt: now,
			UpdatedAt:    now,
		})
	}
	if err != nil {
		return Participant{}, err
	}

	svc.publish(ctx, core.TopicParticipantRegistered, p)
	svc.revalidate(ctx, core.PathDashboard, eventPath(evt.ID), core.PathAdminAttendance)
	return p, nil
}

// CancelRegistration cancels the actor's registration; a freed seat goes to the oldest waiting participant.
func (svc *service) CancelRegistration(ctx context.Context, actor authz.Subject, eventID string) (Participant, error) {
	if err := authz.Require(actor, authz.CanRegisterForEvents); err != nil {
		return Participant{}, err
	}
	evt, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return Participant{}, err
	}
	p, err := svc.repo.GetParticipant(ctx, evt.ID, actor.SubjectID())
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			return Participant{}, ErrNotRegistered
		}
		return Participant{}, err
	}
	if p.IsCheckedIn() || p.Status == ParticipantCancelled {
		return Participant{}, ErrInvalidStatus
	}

	heldSeat := p.Status == ParticipantRegistered
	p.Status = ParticipantCancelled
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.repo.UpdateParticipant(ctx, p); err != nil {
		return Participant{}, err
	}
	if heldSeat {
		svc.promoteWaiting(ctx, evt)
	}
	svc.revalidate(ctx, core.PathDashboard, eventPath(evt.ID), core.PathAdminAttendance)
	return p, nil
}

// promoteWaiting moves the oldest waiting participant to registered when a seat is free.
func (svc *service) promoteWaiting(ctx context.Context, evt Event) {
	if evt.Capacity > 0 {
		seated, err := svc.repo.CountParticipants(ctx, evt.ID, seatStatuses...)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("counting participants of %s: %v", evt.ID, err), err)
			return
		}
		if seated >= evt.Capacity {
			return
		}
	}

	waiting, err := svc.repo.ListParticipants(ctx, evt.ID, ParticipantWaitingList)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("listing waiting list of %s: %v", evt.ID, err), err)
		return
	}
	if len(waiting) == 0 {
		return
	}
	oldest := waiting[0]
	oldest.Status = ParticipantRegistered
	oldest.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateParticipant(ctx, oldest); err != nil {
		svc.logger.Error(fmt.Sprintf("promoting participant %s: %v", oldest.ID, err), err)
	}
}

// SetParticipantStatus lets an admin change the status of a participant, e.g. to Permitted.
// Checked-in participants cannot be changed.
func (svc *service) SetParticipantStatus(ctx context.Context, actor authz.Subject, eventID, participantID, status, note string) (Participant, error) {
	if err := authz.Require(actor, authz.CanManageEvents); err != nil {
		return Participant{}, err
	}
	if status == ParticipantCheckedIn || !isParticipantStatus(status) {
		return Participant{}, ErrInvalidStatus
	}
	p, err := svc.repo.GetParticipantByID(ctx, participantID)
	if err != nil {
		return Participant{}, err
	}
	if p.EventID != eventID {
		return Participant{}, ErrParticipantNotFound
	}
	if p.IsCheckedIn() {
		return Participant{}, ErrInvalidStatus
	}

	heldSeat := p.Status == ParticipantRegistered
	p.Status = status
	p.Note = core.CleanString(note)
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.repo.UpdateParticipant(ctx, p); err != nil {
		return Participant{}, err
	}
	if heldSeat && status != ParticipantRegistered {
		evt, err := svc.repo.GetEventByID(ctx, eventID)
		if err == nil {
			svc.promoteWaiting(ctx, evt)
		}
	}
	svc.revalidate(ctx, eventPath(eventID), core.PathAdminAttendance, core.PathDashboard)
	return p, nil
}

func isParticipantStatus(status string) bool {
	for _, s := range AllParticipantStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (svc *service) Participants(ctx context.Context, actor authz.Subject, eventID string, statuses ...string) ([]Participant, error) {
	if err := authz.Require(actor, authz.CanManageEvents); err != nil {
		return nil, err
	}
	if _, err := svc.repo.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	return svc.repo.ListParticipants(ctx, eventID, statuses...)
}

func (svc *service) Participations(ctx context.Context, actor authz.Subject, userID string) ([]Participation, error) {
	if actor == nil {
		return nil, core.ErrUnauthenticated
	}
	if !authz.CanViewProfile(actor, userID) {
		return nil, core.ErrForbidden
	}
	return svc.repo.ListParticipations(ctx, userID)
}

// SelfCheckIn marks the actor as present at the event.
func (svc *service) SelfCheckIn(ctx context.Context, actor authz.Subject, eventID string) (CheckInResult, error) {
	res, err := svc.selfCheckIn(ctx, actor, eventID)
	switch {
	case err != nil:
		checkInAttempts.WithLabelValues(checkInResultLabel(err)).Inc()
	case res.AlreadyCheckedIn:
		checkInAttempts.WithLabelValues("already").Inc()
	default:
		checkInAttempts.WithLabelValues("success").Inc()
	}
	return res, err
}

func checkInResultLabel(err error) string {
	if appErr, ok := errors.Cause(err).(*core.AppError); ok && appErr.Kind != core.KindSystem {
		return appErr.Key
	}
	return "error"
}

func (svc *service) selfCheckIn(ctx context.Context, actor authz.Subject, eventID string) (CheckInResult, error) {
	if err := authz.Require(actor, authz.CanCheckIn); err != nil {
		return CheckInResult{}, err
	}

	p, err := svc.repo.GetParticipant(ctx, eventID, actor.SubjectID())
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			return CheckInResult{}, ErrNotRegistered
		}
		svc.logger.Error(fmt.Sprintf("finding participant (%s, %s): %v", eventID, actor.SubjectID(), err), err)
		return CheckInResult{}, core.ErrSystem
	}
	if blocker, ok := checkInBlockers[p.Status]; ok {
		return CheckInResult{}, blocker
	}
	if p.IsCheckedIn() {
		return CheckInResult{AlreadyCheckedIn: true, CheckedInAt: p.CheckedInAt}, nil
	}

	checkedInAt, applied, err := svc.repo.CheckIn(ctx, p.ID, NowFunc().UTC())
	if err != nil {
		svc.logger.Error(fmt.Sprintf("checking in participant %s: %v", p.ID, err), err)
		return CheckInResult{}, core.ErrSystem
	}
	if !applied {
		if checkedInAt.IsZero() {
			// the status changed since it was read
			return CheckInResult{}, svc.checkInRefusal(ctx, p.ID)
		}
		return CheckInResult{AlreadyCheckedIn: true, CheckedInAt: checkedInAt}, nil
	}

	svc.publish(ctx, core.TopicParticipantCheckedIn, map[string]interface{}{
		"event_id":      eventID,
		"user_id":       actor.SubjectID(),
		"checked_in_at": checkedInAt,
	})
	svc.revalidate(ctx, core.PathDashboard, core.PathAdminEvents, eventPath(eventID), core.PathAdminAttendance)
	return CheckInResult{CheckedInAt: checkedInAt}, nil
}

func (svc *service) checkInRefusal(ctx context.Context, participantID string) error {
	p, err := svc.repo.GetParticipantByID(ctx, participantID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding participant %s: %v", participantID, err), err)
		return core.ErrSystem
	}
	if blocker, ok := checkInBlockers[p.Status]; ok {
		return blocker
	}
	svc.logger.Error(fmt.Sprintf("check-in of participant %s not applied (status %q)", participantID, p.Status), nil)
	return core.ErrSystem
}

// Attendance

func (svc *service) EventAttendance(ctx context.Context, actor authz.Subject, eventID string) (Attendance, error) {
	participants, err := svc.Participants(ctx, actor, eventID)
	if err != nil {
		return Attendance{}, err
	}
	return ComputeAttendance(participants), nil
}

// MemberAttendance returns the attendance of the user over the events that already started.
func (svc *service) MemberAttendance(ctx context.Context, actor authz.Subject, userID string) (Attendance, error) {
	participations, err := svc.Participations(ctx, actor, userID)
	if err != nil {
		return Attendance{}, err
	}
	now := NowFunc()
	participants := make([]Participant, 0, len(participations))
	for _, p := range participations {
		if p.Event.StartsAt.Before(now) {
			participants = append(participants, p.Participant)
		}
	}
	return ComputeAttendance(participants), nil
}

func (svc *service) OverallAttendance(ctx context.Context, actor authz.Subject) (Attendance, error) {
	if err := authz.Require(actor, authz.CanAccessAdmin); err != nil {
		return Attendance{}, err
	}
	participants, err := svc.repo.ListAllParticipants(ctx, NowFunc())
	if err != nil {
		return Attendance{}, err
	}
	return ComputeAttendance(participants), nil
}
