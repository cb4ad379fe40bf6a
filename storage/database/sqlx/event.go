package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alumni/core"
	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/user"
)

var (
	eventFields       = []string{"id", "slug", "title", "description", "category", "location", "starts_at", "ends_at", "status", "capacity", "created_by", "created_at", "updated_at"}
	participantFields = []string{"id", "event_id", "user_id", "status", "checked_in_at", "is_sanctioned", "note", "registered_at", "updated_at"}

	eventColumns       = strings.Join(eventFields, ", ")
	participantColumns = strings.Join(participantFields, ", ")
)

const (
	eventsSlugKey            = "events_slug_key"
	participantsEventUserKey = "event_participants_event_user_key"
	participantsEventFKey    = "event_participants_event_id_fkey"
	participantsUserFKey     = "event_participants_user_id_fkey"
)

var eventOrdering = map[string]string{
	"title":      "title",
	"category":   "category",
	"location":   "location",
	"status":     "status",
	"starts_at":  "starts_at",
	"created_at": "created_at",
}

// qualified prefixes each column with the table alias, optionally aliasing it as `<as>.<column>`.
func qualified(alias string, fields []string, as string) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = alias + "." + f
		if as != "" {
			cols[i] += ` AS "` + as + "." + f + `"`
		}
	}
	return strings.Join(cols, ", ")
}

func namedValues(fields []string) string {
	return ":" + strings.Join(fields, ", :")
}

type eventRow struct {
	ID          string      `db:"id"`
	Slug        string      `db:"slug"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Category    string      `db:"category"`
	Location    string      `db:"location"`
	StartsAt    time.Time   `db:"starts_at"`
	EndsAt      null.Time   `db:"ends_at"`
	Status      string      `db:"status"`
	Capacity    int         `db:"capacity"`
	CreatedBy   null.String `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func newEventRow(evt event.Event) eventRow {
	return eventRow{
		ID:          evt.ID,
		Slug:        evt.Slug,
		Title:       evt.Title,
		Description: evt.Description,
		Category:    evt.Category,
		Location:    evt.Location,
		StartsAt:    evt.StartsAt,
		EndsAt:      null.NewTime(evt.EndsAt, !evt.EndsAt.IsZero()),
		Status:      evt.Status,
		Capacity:    evt.Capacity,
		CreatedBy:   null.NewString(evt.CreatedBy, evt.CreatedBy != ""),
		CreatedAt:   evt.CreatedAt,
		UpdatedAt:   evt.UpdatedAt,
	}
}

func (r eventRow) toEvent() event.Event {
	evt := event.Event{
		ID:          r.ID,
		Slug:        r.Slug,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		StartsAt:    r.StartsAt.UTC(),
		Status:      r.Status,
		Capacity:    r.Capacity,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.EndsAt.Valid {
		evt.EndsAt = r.EndsAt.Time.UTC()
	}
	return evt
}

type participantRow struct {
	ID           string    `db:"id"`
	EventID      string    `db:"event_id"`
	UserID       string    `db:"user_id"`
	Status       string    `db:"status"`
	CheckedInAt  null.Time `db:"checked_in_at"`
	IsSanctioned bool      `db:"is_sanctioned"`
	Note         string    `db:"note"`
	RegisteredAt time.Time `db:"registered_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func newParticipantRow(p event.Participant) participantRow {
	return participantRow{
		ID:           p.ID,
		EventID:      p.EventID,
		UserID:       p.UserID,
		Status:       p.Status,
		CheckedInAt:  null.NewTime(p.CheckedInAt, !p.CheckedInAt.IsZero()),
		IsSanctioned: p.IsSanctioned,
		Note:         p.Note,
		RegisteredAt: p.RegisteredAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (r participantRow) toParticipant() event.Participant {
	p := event.Participant{
		ID:           r.ID,
		EventID:      r.EventID,
		UserID:       r.UserID,
		Status:       r.Status,
		IsSanctioned: r.IsSanctioned,
		Note:         r.Note,
		RegisteredAt: r.RegisteredAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.CheckedInAt.Valid {
		p.CheckedInAt = r.CheckedInAt.Time.UTC()
	}
	return p
}

func toParticipants(rows []participantRow) []event.Participant {
	participants := make([]event.Participant, len(rows))
	for i, row := range rows {
		participants[i] = row.toParticipant()
	}
	return participants
}

type participationRow struct {
	participantRow
	Event eventRow `db:"event"`
}

type eventRepository struct {
	db *sqlx.DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *sqlx.DB) event.Repository {
	return &eventRepository{db: db}
}

// Events

func (repo *eventRepository) CreateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	evt.ID = uuid.NewString()
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES ("+namedValues(eventFields)+")",
		newEventRow(evt),
	)
	if err != nil {
		if isUniqueViolation(err, eventsSlugKey) {
			return event.Event{}, event.ErrSlugExists
		}
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return evt, nil
}

func (repo *eventRepository) GetEventByID(ctx context.Context, id string) (event.Event, error) {
	if !isUUID(id) {
		return event.Event{}, event.ErrNotFound
	}
	var row eventRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+eventColumns+" FROM events WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, errors.Wrap(err, "selecting event")
	}
	return row.toEvent(), nil
}

func (repo *eventRepository) UpdateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if !isUUID(evt.ID) {
		return event.Event{}, event.ErrNotFound
	}
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE events
		SET slug = :slug, title = :title, description = :description, category = :category, location = :location,
			starts_at = :starts_at, ends_at = :ends_at, status = :status, capacity = :capacity, updated_at = :updated_at
		WHERE id = :id`,
		newEventRow(evt),
	)
	if err != nil {
		if isUniqueViolation(err, eventsSlugKey) {
			return event.Event{}, event.ErrSlugExists
		}
		return event.Event{}, errors.Wrap(err, "updating event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return evt, nil
}

func (repo *eventRepository) DeleteEventsByID(ctx context.Context, ids ...string) error {
	if ids = validIDs(ids); len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In("DELETE FROM events WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "expanding IN clause")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting events")
	}
	return nil
}

func (repo *eventRepository) QueryEvents(ctx context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]event.Event, int, error) {
	var w where
	if filter != nil {
		w.addSearch(filter.Search, "title", "location", "description")
		if len(filter.Statuses) > 0 {
			if err := w.addIn("status IN (?)", filter.Statuses); err != nil {
				return nil, 0, err
			}
		}
		if filter.Category != "" {
			w.add("LOWER(category) = LOWER(?)", filter.Category)
		}
		if !filter.StartsFrom.IsZero() {
			w.add("starts_at >= ?", filter.StartsFrom)
		}
		if !filter.StartsTo.IsZero() {
			w.add("starts_at <= ?", filter.StartsTo)
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind("SELECT COUNT(*) FROM events"+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting events")
	}

	limit, limitArgs := pageClause(page)
	q := "SELECT " + eventColumns + " FROM events" + w.String() +
		orderClause(ordering, eventOrdering, core.DBOrdering{Field: "starts_at", Ascending: false}) + limit
	var rows []eventRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), append(w.args, limitArgs...)...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting events")
	}

	events := make([]event.Event, len(rows))
	for i, row := range rows {
		events[i] = row.toEvent()
	}
	return events, count, nil
}

func (repo *eventRepository) CountEventsByStatus(ctx context.Context) (map[string]int, error) {
	return countByStatus(ctx, repo.db, "events", event.AllStatuses)
}

// Participants

func (repo *eventRepository) CreateParticipant(ctx context.Context, p event.Participant) (event.Participant, error) {
	if !isUUID(p.UserID) {
		return event.Participant{}, user.ErrNotFound
	}
	if !isUUID(p.EventID) {
		return event.Participant{}, event.ErrNotFound
	}
	p.ID = uuid.NewString()
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO event_participants ("+participantColumns+") VALUES ("+namedValues(participantFields)+")",
		newParticipantRow(p),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, participantsEventUserKey):
			return event.Participant{}, event.ErrAlreadyRegistered
		case isForeignKeyViolation(err, participantsEventFKey):
			return event.Participant{}, event.ErrNotFound
		case isForeignKeyViolation(err, participantsUserFKey):
			return event.Participant{}, user.ErrNotFound
		}
		return event.Participant{}, errors.Wrap(err, "inserting participant")
	}
	return p, nil
}

func (repo *eventRepository) getParticipant(ctx context.Context, cond string, args ...interface{}) (event.Participant, error) {
	var row participantRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+participantColumns+" FROM event_participants WHERE "+cond, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Participant{}, event.ErrParticipantNotFound
		}
		return event.Participant{}, errors.Wrap(err, "selecting participant")
	}
	return row.toParticipant(), nil
}

func (repo *eventRepository) GetParticipant(ctx context.Context, eventID, userID string) (event.Participant, error) {
	if !isUUID(eventID) || !isUUID(userID) {
		return event.Participant{}, event.ErrParticipantNotFound
	}
	return repo.getParticipant(ctx, "event_id = $1 AND user_id = $2", eventID, userID)
}

func (repo *eventRepository) GetParticipantByID(ctx context.Context, id string) (event.Participant, error) {
	if !isUUID(id) {
		return event.Participant{}, event.ErrParticipantNotFound
	}
	return repo.getParticipant(ctx, "id = $1", id)
}

func (repo *eventRepository) UpdateParticipant(ctx context.Context, p event.Participant) (event.Participant, error) {
	if !isUUID(p.ID) {
		return event.Participant{}, event.ErrParticipantNotFound
	}
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE event_participants
		SET status = :status, checked_in_at = :checked_in_at, is_sanctioned = :is_sanctioned, note = :note,
			registered_at = :registered_at, updated_at = :updated_at
		WHERE id = :id`,
		newParticipantRow(p),
	)
	if err != nil {
		return event.Participant{}, errors.Wrap(err, "updating participant")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.Participant{}, event.ErrParticipantNotFound
	}
	return p, nil
}

func (repo *eventRepository) ListParticipants(ctx context.Context, eventID string, statuses ...string) ([]event.Participant, error) {
	if !isUUID(eventID) {
		return []event.Participant{}, nil
	}
	var w where
	w.add("event_id = ?", eventID)
	if len(statuses) > 0 {
		if err := w.addIn("status IN (?)", statuses); err != nil {
			return nil, err
		}
	}

	var rows []participantRow
	q := repo.db.Rebind("SELECT " + participantColumns + " FROM event_participants" + w.String() + " ORDER BY registered_at ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting participants")
	}
	return toParticipants(rows), nil
}

func (repo *eventRepository) ListParticipations(ctx context.Context, userID string) ([]event.Participation, error) {
	if !isUUID(userID) {
		return []event.Participation{}, nil
	}
	var rows []participationRow
	q := "SELECT " + qualified("ep", participantFields, "") + ", " + qualified("e", eventFields, "event") + `
		FROM event_participants ep
		JOIN events e ON e.id = ep.event_id
		WHERE ep.user_id = $1
		ORDER BY e.starts_at ASC`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting participations")
	}

	participations := make([]event.Participation, len(rows))
	for i, row := range rows {
		participations[i] = event.Participation{Participant: row.toParticipant(), Event: row.Event.toEvent()}
	}
	return participations, nil
}

func (repo *eventRepository) CountParticipants(ctx context.Context, eventID string, statuses ...string) (int, error) {
	if !isUUID(eventID) {
		return 0, nil
	}
	var w where
	w.add("event_id = ?", eventID)
	if len(statuses) > 0 {
		if err := w.addIn("status IN (?)", statuses); err != nil {
			return 0, err
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind("SELECT COUNT(*) FROM event_participants"+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting participants")
	}
	return count, nil
}

func (repo *eventRepository) ListAllParticipants(ctx context.Context, startedBefore time.Time) ([]event.Participant, error) {
	var rows []participantRow
	q := "SELECT " + qualified("ep", participantFields, "") + `
		FROM event_participants ep
		JOIN events e ON e.id = ep.event_id
		WHERE e.starts_at < $1
		ORDER BY ep.registered_at ASC`
	if err := repo.db.SelectContext(ctx, &rows, q, startedBefore); err != nil {
		return nil, errors.Wrap(err, "selecting participants")
	}
	return toParticipants(rows), nil
}

// CheckIn runs the self_check_in function, which applies the check-in in a single UPDATE.
func (repo *eventRepository) CheckIn(ctx context.Context, participantID string, at time.Time) (time.Time, bool, error) {
	if !isUUID(participantID) {
		return time.Time{}, false, event.ErrParticipantNotFound
	}
	var res struct {
		CheckedInAt null.Time `db:"out_checked_in_at"`
		Applied     bool      `db:"out_applied"`
	}
	err := repo.db.GetContext(ctx, &res, "SELECT out_checked_in_at, out_applied FROM self_check_in($1, $2)", participantID, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, event.ErrParticipantNotFound
		}
		return time.Time{}, false, errors.Wrap(err, "checking in participant")
	}
	var checkedInAt time.Time
	if res.CheckedInAt.Valid {
		checkedInAt = res.CheckedInAt.Time.UTC()
	}
	return checkedInAt, res.Applied, nil
}
