package profile

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alumni/core"
)

// Statuses
const (
	StatusPending  = "Pending"
	StatusActive   = "Active"
	StatusRejected = "Rejected"
)

var AllStatuses = []string{StatusPending, StatusActive, StatusRejected}

type Profile struct {
	UserID string `json:"user_id"`

	FullName   string    `json:"full_name"`
	Nickname   string    `json:"nickname"`
	Phone      string    `json:"phone"`
	BirthPlace string    `json:"birth_place"`
	BirthDate  time.Time `json:"birth_date"`
	Gender     string    `json:"gender"`

	UniversityID   int    `json:"university_id"`
	Faculty        string `json:"faculty"`
	Major          string `json:"major"`
	StudentNumber  string `json:"student_number"`
	EntryYear      int    `json:"entry_year"`
	GraduationYear int    `json:"graduation_year"`

	Address  string `json:"address"`
	City     string `json:"city"`
	Province string `json:"province"`

	Occupation string `json:"occupation"`
	Company    string `json:"company"`
	JobTitle   string `json:"job_title"`
	Industry   string `json:"industry"`

	AvatarKey string `json:"-"`
	AvatarURL string `json:"avatar_url,omitempty"`

	Status       string    `json:"status"`
	ApprovedBy   string    `json:"approved_by,omitempty"`
	ApprovedAt   time.Time `json:"approved_at"`  // UTC
	CreatedAt    time.Time `json:"created_at"`   // UTC
	UpdatedAt    time.Time `json:"updated_at"`   // UTC
	Completeness int       `json:"completeness"` // computed
}

// checklist is the fixed list of fields the completeness score is computed from.
var checklist = []func(p Profile) bool{
	func(p Profile) bool { return p.FullName != "" },
	func(p Profile) bool { return p.Nickname != "" },
	func(p Profile) bool { return p.Phone != "" },
	func(p Profile) bool { return p.BirthPlace != "" },
	func(p Profile) bool { return !p.BirthDate.IsZero() },
	func(p Profile) bool { return p.Gender != "" },
	func(p Profile) bool { return p.UniversityID != 0 },
	func(p Profile) bool { return p.Faculty != "" },
	func(p Profile) bool { return p.Major != "" },
	func(p Profile) bool { return p.EntryYear != 0 },
	func(p Profile) bool { return p.GraduationYear != 0 },
	func(p Profile) bool { return p.Address != "" },
	func(p Profile) bool { return p.City != "" },
	func(p Profile) bool { return p.Province != "" },
	func(p Profile) bool { return p.Occupation != "" },
	func(p Profile) bool { return p.Company != "" },
	func(p Profile) bool { return p.JobTitle != "" },
	func(p Profile) bool { return p.AvatarKey != "" },
}

// ComputeCompleteness returns the percentage (floored) of filled checklist fields.
func (p Profile) ComputeCompleteness() int {
	var filled int
	for _, isFilled := range checklist {
		if isFilled(p) {
			filled++
		}
	}
	return filled * 100 / len(checklist)
}

// NewProfile holds the profile fields collected at registration.
type NewProfile struct {
	FullName       string `json:"full_name"`
	Phone          string `json:"phone" validate:"omitempty,phone"`
	UniversityID   int    `json:"university_id" validate:"omitempty,min=1"`
	EntryYear      int    `json:"entry_year" validate:"omitempty,min=1950,max=2100"`
	GraduationYear int    `json:"graduation_year" validate:"omitempty,min=1950,max=2100,gtefield=EntryYear"`
}

func (np *NewProfile) Validate(validate *validator.Validate) error {
	np.FullName = core.CollapseSpaces(np.FullName)
	np.Phone = core.CleanString(np.Phone)
	return validate.Struct(np)
}

// UpdateProfile defines what information may be provided to modify an existing Profile.
// Nil fields are left untouched.
type UpdateProfile struct {
	FullName       *string `json:"full_name" validate:"omitempty,notblank"`
	Nickname       *string `json:"nickname"`
	Phone          *string `json:"phone" validate:"omitempty,phone"`
	BirthPlace     *string `json:"birth_place"`
	BirthDate      *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Gender         *string `json:"gender" validate:"omitempty,oneof=male female"`
	UniversityID   *int    `json:"university_id" validate:"omitempty,min=0"`
	Faculty        *string `json:"faculty"`
	Major          *string `json:"major"`
	StudentNumber  *string `json:"student_number"`
	EntryYear      *int    `json:"entry_year" validate:"omitempty,min=0,max=2100"`
	GraduationYear *int    `json:"graduation_year" validate:"omitempty,min=0,max=2100"`
	Address        *string `json:"address"`
	City           *string `json:"city"`
	Province       *string `json:"province"`
	Occupation     *string `json:"occupation"`
	Company        *string `json:"company"`
	JobTitle       *string `json:"job_title"`
	Industry       *string `json:"industry"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{
		up.FullName, up.Nickname, up.Phone, up.BirthPlace, up.BirthDate, up.Gender, up.Faculty, up.Major,
		up.StudentNumber, up.Address, up.City, up.Province, up.Occupation, up.Company, up.JobTitle, up.Industry,
	} {
		if fld != nil {
			*fld = core.CollapseSpaces(*fld)
		}
	}
	return validate.Struct(up)
}

// apply copies the provided fields onto p.
func (up UpdateProfile) apply(p *Profile) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setStr(&p.FullName, up.FullName)
	setStr(&p.Nickname, up.Nickname)
	setStr(&p.Phone, up.Phone)
	setStr(&p.BirthPlace, up.BirthPlace)
	if up.BirthDate != nil {
		p.BirthDate = time.Time{}
		if *up.BirthDate != "" {
			p.BirthDate, _ = time.Parse("2006-01-02", *up.BirthDate)
		}
	}
	setStr(&p.Gender, up.Gender)
	setInt(&p.UniversityID, up.UniversityID)
	setStr(&p.Faculty, up.Faculty)
	setStr(&p.Major, up.Major)
	setStr(&p.StudentNumber, up.StudentNumber)
	setInt(&p.EntryYear, up.EntryYear)
	setInt(&p.GraduationYear, up.GraduationYear)
	setStr(&p.Address, up.Address)
	setStr(&p.City, up.City)
	setStr(&p.Province, up.Province)
	setStr(&p.Occupation, up.Occupation)
	setStr(&p.Company, up.Company)
	setStr(&p.JobTitle, up.JobTitle)
	setStr(&p.Industry, up.Industry)
}

type QueryFilter struct {
	Search         string   `query:"search"`
	Statuses       []string `query:"status"`
	UniversityID   int      `query:"university_id"`
	GraduationYear int      `query:"graduation_year"`
	City           string   `query:"city"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.City = core.CleanString(qf.City)
}

// Avatar is an uploaded profile picture.
type Avatar struct {
	Content     io.Reader
	Size        int64
	ContentType string
}
