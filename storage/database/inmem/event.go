package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
)

var eventOrdering = comparators[event.Event]{
	"title":      func(a, b event.Event) int { return strings.Compare(a.Title, b.Title) },
	"category":   func(a, b event.Event) int { return strings.Compare(a.Category, b.Category) },
	"location":   func(a, b event.Event) int { return strings.Compare(a.Location, b.Location) },
	"status":     func(a, b event.Event) int { return strings.Compare(a.Status, b.Status) },
	"starts_at":  func(a, b event.Event) int { return cmpTime(a.StartsAt, b.StartsAt) },
	"created_at": func(a, b event.Event) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{db: db}
}

// Events

func (repo *eventRepository) slugTaken(slug, id string) bool {
	for _, evt := range repo.db.event.table {
		if evt.Slug == slug && evt.ID != id {
			return true
		}
	}
	return false
}

func (repo *eventRepository) CreateEvent(_ context.Context, evt event.Event) (event.Event, error) {
	repo.db.event.Lock()
	defer repo.db.event.Unlock()

	if repo.slugTaken(evt.Slug, "") {
		return event.Event{}, event.ErrSlugExists
	}
	evt.ID = uuid.NewString()
	repo.db.event.table[evt.ID] = &evt
	return evt, nil
}

func (repo *eventRepository) GetEventByID(_ context.Context, id string) (event.Event, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	if evt, ok := repo.db.event.table[id]; ok {
		return *evt, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) UpdateEvent(_ context.Context, evt event.Event) (event.Event, error) {
	repo.db.event.Lock()
	defer repo.db.event.Unlock()

	if _, ok := repo.db.event.table[evt.ID]; !ok {
		return event.Event{}, event.ErrNotFound
	}
	if repo.slugTaken(evt.Slug, evt.ID) {
		return event.Event{}, event.ErrSlugExists
	}
	repo.db.event.table[evt.ID] = &evt
	return evt, nil
}

func (repo *eventRepository) DeleteEventsByID(_ context.Context, ids ...string) error {
	repo.db.event.Lock()
	defer repo.db.event.Unlock()
	repo.db.participant.Lock()
	defer repo.db.participant.Unlock()

	for _, id := range ids {
		delete(repo.db.event.table, id)
	}
	for pid, p := range repo.db.participant.table {
		if inStrings(p.EventID, ids) {
			delete(repo.db.participant.table, pid)
		}
	}
	return nil
}

func (repo *eventRepository) QueryEvents(_ context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]event.Event, int, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	events := make([]event.Event, 0)
	for _, evt := range repo.db.event.table {
		if filter != nil {
			if filter.Search != "" && !(containsFold(evt.Title, filter.Search) || containsFold(evt.Location, filter.Search) || containsFold(evt.Description, filter.Search)) {
				continue
			}
			if len(filter.Statuses) > 0 && !inStrings(evt.Status, filter.Statuses) {
				continue
			}
			if filter.Category != "" && !strings.EqualFold(evt.Category, filter.Category) {
				continue
			}
			if !filter.StartsFrom.IsZero() && evt.StartsAt.Before(filter.StartsFrom) {
				continue
			}
			if !filter.StartsTo.IsZero() && evt.StartsAt.After(filter.StartsTo) {
				continue
			}
		}
		events = append(events, *evt)
	}

	orderBy(events, ordering, eventOrdering, core.DBOrdering{Field: "starts_at", Ascending: false})
	return paginate(events, page), len(events), nil
}

func (repo *eventRepository) CountEventsByStatus(_ context.Context) (map[string]int, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()

	counts := make(map[string]int, len(event.AllStatuses))
	for _, status := range event.AllStatuses {
		counts[status] = 0
	}
	for _, evt := range repo.db.event.table {
		counts[evt.Status]++
	}
	return counts, nil
}

// Participants

func sortByRegistration(participants []event.Participant) {
	sort.SliceStable(participants, func(i, j int) bool {
		return participants[i].RegisteredAt.Before(participants[j].RegisteredAt)
	})
}

func (repo *eventRepository) CreateParticipant(_ context.Context, p event.Participant) (event.Participant, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()
	repo.db.participant.Lock()
	defer repo.db.participant.Unlock()

	if _, ok := repo.db.user.table[p.UserID]; !ok {
		return event.Participant{}, user.ErrNotFound
	}
	if _, ok := repo.db.event.table[p.EventID]; !ok {
		return event.Participant{}, event.ErrNotFound
	}
	for _, existing := range repo.db.participant.table {
		if existing.EventID == p.EventID && existing.UserID == p.UserID {
			return event.Participant{}, event.ErrAlreadyRegistered
		}
	}
	p.ID = uuid.NewString()
	repo.db.participant.table[p.ID] = &p
	return p, nil
}

func (repo *eventRepository) GetParticipant(_ context.Context, eventID, userID string) (event.Participant, error) {
	repo.db.participant.RLock()
	defer repo.db.participant.RUnlock()

	for _, p := range repo.db.participant.table {
		if p.EventID == eventID && p.UserID == userID {
			return *p, nil
		}
	}
	return event.Participant{}, event.ErrParticipantNotFound
}

func (repo *eventRepository) GetParticipantByID(_ context.Context, id string) (event.Participant, error) {
	repo.db.participant.RLock()
	defer repo.db.participant.RUnlock()

	if p, ok := repo.db.participant.table[id]; ok {
		return *p, nil
	}
	return event.Participant{}, event.ErrParticipantNotFound
}

func (repo *eventRepository) UpdateParticipant(_ context.Context, p event.Participant) (event.Participant, error) {
	repo.db.participant.Lock()
	defer repo.db.participant.Unlock()

	if _, ok := repo.db.participant.table[p.ID]; !ok {
		return event.Participant{}, event.ErrParticipantNotFound
	}
	repo.db.participant.table[p.ID] = &p
	return p, nil
}

func (repo *eventRepository) ListParticipants(_ context.Context, eventID string, statuses ...string) ([]event.Participant, error) {
	repo.db.participant.RLock()
	defer repo.db.participant.RUnlock()

	participants := make([]event.Participant, 0)
	for _, p := range repo.db.participant.table {
		if p.EventID != eventID || (len(statuses) > 0 && !inStrings(p.Status, statuses)) {
			continue
		}
		participants = append(participants, *p)
	}
	sortByRegistration(participants)
	return participants, nil
}

func (repo *eventRepository) ListParticipations(_ context.Context, userID string) ([]event.Participation, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()
	repo.db.participant.RLock()
	defer repo.db.participant.RUnlock()

	participations := make([]event.Participation, 0)
	for _, p := range repo.db.participant.table {
		if p.UserID != userID {
			continue
		}
		if evt, ok := repo.db.event.table[p.EventID]; ok {
			participations = append(participations, event.Participation{Participant: *p, Event: *evt})
		}
	}
	sort.SliceStable(participations, func(i, j int) bool {
		return participations[i].Event.StartsAt.Before(participations[j].Event.StartsAt)
	})
	return participations, nil
}

func (repo *eventRepository) CountParticipants(_ context.Context, eventID string, statuses ...string) (int, error) {
	repo.db.participant.RLock()
	defer repo.db.participant.RUnlock()

	var count int
	for _, p := range repo.db.participant.table {
		if p.EventID == eventID && (len(statuses) == 0 || inStrings(p.Status, statuses)) {
			count++
		}
	}
	return count, nil
}

func (repo *eventRepository) ListAllParticipants(_ context.Context, startedBefore time.Time) ([]event.Participant, error) {
	repo.db.event.RLock()
	defer repo.db.event.RUnlock()
	repo.db.participant.RLock()
	defer repo.db.participant.RUnlock()

	participants := make([]event.Participant, 0)
	for _, p := range repo.db.participant.table {
		if evt, ok := repo.db.event.table[p.EventID]; ok && evt.StartsAt.Before(startedBefore) {
			participants = append(participants, *p)
		}
	}
	sortByRegistration(participants)
	return participants, nil
}

// CheckIn applies the check-in under the table lock, so concurrent calls apply it at most once.
func (repo *eventRepository) CheckIn(_ context.Context, participantID string, at time.Time) (time.Time, bool, error) {
	repo.db.participant.Lock()
	defer repo.db.participant.Unlock()

	p, ok := repo.db.participant.table[participantID]
	if !ok {
		return time.Time{}, false, event.ErrParticipantNotFound
	}
	switch p.Status {
	case event.ParticipantWaitingList, event.ParticipantCancelled, event.ParticipantPermitted:
		return p.CheckedInAt, false, nil
	}
	if !p.CheckedInAt.IsZero() {
		return p.CheckedInAt, false, nil
	}

	updated := *p
	updated.Status = event.ParticipantCheckedIn
	updated.CheckedInAt = at
	updated.IsSanctioned = false
	updated.UpdatedAt = at
	repo.db.participant.table[participantID] = &updated
	return at, true, nil
}
