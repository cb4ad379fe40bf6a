package event

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alumni/core"
)

// Event statuses
const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Participant statuses
const (
	ParticipantRegistered  = "registered"
	ParticipantWaitingList = "Waiting List"
	ParticipantCancelled   = "Cancelled"
	ParticipantPermitted   = "Permitted"
	ParticipantCheckedIn   = "checked-in"
)

var (
	AllStatuses            = []string{StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled}
	AllParticipantStatuses = []string{ParticipantRegistered, ParticipantWaitingList, ParticipantCancelled, ParticipantPermitted, ParticipantCheckedIn}

	// statuses holding a seat of the event capacity
	seatStatuses = []string{ParticipantRegistered, ParticipantCheckedIn}
)

type Event struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"` // UTC
	EndsAt      time.Time `json:"ends_at"`   // UTC, zero when open-ended
	Status      string    `json:"status"`
	Capacity    int       `json:"capacity"` // 0 = unlimited
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// IsOpen reports whether members may still register for the event.
func (e Event) IsOpen() bool {
	return e.Status == StatusUpcoming || e.Status == StatusOngoing
}

type Participant struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	CheckedInAt  time.Time `json:"checked_in_at"` // UTC
	IsSanctioned bool      `json:"is_sanctioned"`
	Note         string    `json:"note"`
	RegisteredAt time.Time `json:"registered_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"`    // UTC
}

func (p Participant) IsCheckedIn() bool {
	return !p.CheckedInAt.IsZero() || p.Status == ParticipantCheckedIn
}

// Participation is a participant row along with its event.
type Participation struct {
	Participant
	Event Event `json:"event"`
}

type NewEvent struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description"`
	Category    string    `json:"category" validate:"max=100"`
	Location    string    `json:"location" validate:"max=200"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status" validate:"omitempty,oneof=upcoming ongoing completed cancelled"`
	Capacity    int       `json:"capacity" validate:"min=0"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CollapseSpaces(ne.Title)
	ne.Category = core.CollapseSpaces(ne.Category)
	ne.Location = core.CollapseSpaces(ne.Location)
	ne.Description = core.CleanString(ne.Description)
	if ne.Status == "" {
		ne.Status = StatusUpcoming
	}
	if err := validate.Struct(ne); err != nil {
		return err
	}
	return validateSchedule(ne.StartsAt, ne.EndsAt)
}

// UpdateEvent defines what information may be provided to modify an existing Event.
// Nil fields are left untouched.
type UpdateEvent struct {
	Title       *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description"`
	Category    *string    `json:"category" validate:"omitempty,max=100"`
	Location    *string    `json:"location" validate:"omitempty,max=200"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Status      *string    `json:"status" validate:"omitempty,oneof=upcoming ongoing completed cancelled"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=0"`
}

func (ue *UpdateEvent) Validate(origEvt Event, validate *validator.Validate) error {
	for _, fld := range []*string{ue.Title, ue.Category, ue.Location} {
		if fld != nil {
			*fld = core.CollapseSpaces(*fld)
		}
	}
	if err := validate.Struct(ue); err != nil {
		return err
	}
	starts, ends := origEvt.StartsAt, origEvt.EndsAt
	if ue.StartsAt != nil {
		starts = *ue.StartsAt
	}
	if ue.EndsAt != nil {
		ends = *ue.EndsAt
	}
	return validateSchedule(starts, ends)
}

func (ue UpdateEvent) apply(e *Event) {
	if ue.Title != nil {
		e.Title = *ue.Title
	}
	if ue.Description != nil {
		e.Description = *ue.Description
	}
	if ue.Category != nil {
		e.Category = *ue.Category
	}
	if ue.Location != nil {
		e.Location = *ue.Location
	}
	if ue.StartsAt != nil {
		e.StartsAt = ue.StartsAt.UTC()
	}
	if ue.EndsAt != nil {
		e.EndsAt = ue.EndsAt.UTC()
	}
	if ue.Status != nil {
		e.Status = *ue.Status
	}
	if ue.Capacity != nil {
		e.Capacity = *ue.Capacity
	}
}

func validateSchedule(starts, ends time.Time) error {
	if !ends.IsZero() && ends.Before(starts) {
		return core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: "ends_at must be after starts_at"})
	}
	return nil
}

type QueryFilter struct {
	Search     string    `query:"search"`
	Statuses   []string  `query:"status"`
	Category   string    `query:"category"`
	StartsFrom time.Time `query:"starts_from"`
	StartsTo   time.Time `query:"starts_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
}

// CheckInResult is the outcome of a successful self check-in.
type CheckInResult struct {
	AlreadyCheckedIn bool      `json:"alreadyCheckedIn"`
	CheckedInAt      time.Time `json:"checkedInAt"`
}

type Attendance struct {
	Registered int     `json:"registered"`
	CheckedIn  int     `json:"checked_in"`
	Rate       float64 `json:"rate"` // percentage, 1 decimal
}

// ComputeAttendance returns the share of checked-in participants among those expected to attend.
// Waiting List, Cancelled and Permitted participants are not expected.
func ComputeAttendance(participants []Participant) Attendance {
	var att Attendance
	for _, p := range participants {
		switch {
		case p.IsCheckedIn():
			att.CheckedIn++
		case p.Status == ParticipantRegistered:
			att.Registered++
		}
	}
	att.Rate = attendanceRate(att.CheckedIn, att.Registered+att.CheckedIn)
	return att
}

func attendanceRate(checkedIn, expected int) float64 {
	if expected == 0 {
		return 0
	}
	return math.Round(float64(checkedIn)*1000/float64(expected)) / 10
}
