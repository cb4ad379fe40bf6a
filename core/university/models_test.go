package university

import (
	"strings"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate
}

func TestNewUniversity_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name     string
		in       string
		wantName string
		wantTag  string
	}{
		{name: "normalized", in: "  universitas \t indonesia ", wantName: "UNIVERSITAS INDONESIA"},
		{name: "blank", in: " \t ", wantTag: "required"},
		{name: "max length", in: strings.Repeat("a", 200), wantName: strings.Repeat("A", 200)},
		{name: "too long", in: strings.Repeat("a", 201), wantTag: "max"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nu := NewUniversity{Name: tc.in}
			err := nu.Validate(validate)
			if tc.wantTag == "" {
				assert.NoError(t, err)
				assert.Equal(t, tc.wantName, nu.Name)
				return
			}
			if fErrs, ok := err.(validator.ValidationErrors); assert.True(t, ok, "got %v", err) {
				assert.Equal(t, "name", fErrs[0].Field())
				assert.Equal(t, tc.wantTag, fErrs[0].Tag())
			}
		})
	}
}

func TestUpdateUniversity_Validate(t *testing.T) {
	validate := newValidator()

	uu := UpdateUniversity{Name: " institut  teknologi bandung"}
	assert.NoError(t, uu.Validate(validate))
	assert.Equal(t, "INSTITUT TEKNOLOGI BANDUNG", uu.Name)

	uu = UpdateUniversity{Name: ""}
	assert.Error(t, uu.Validate(validate))
}
