package university

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alumni/core"
)

type University struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NormalizeName trims and upper-cases a university name, collapsing inner whitespace.
func NormalizeName(name string) string {
	return strings.ToUpper(core.CollapseSpaces(name))
}

type NewUniversity struct {
	Name string `json:"name" validate:"required,max=200"`
}

// Validate normalizes the name before checking it.
func (nu *NewUniversity) Validate(validate *validator.Validate) error {
	nu.Name = NormalizeName(nu.Name)
	return validate.Struct(nu)
}

type UpdateUniversity struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (uu *UpdateUniversity) Validate(validate *validator.Validate) error {
	uu.Name = NormalizeName(uu.Name)
	return validate.Struct(uu)
}
