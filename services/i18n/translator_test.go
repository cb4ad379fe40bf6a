package i18nsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	logsvc "github.com/trezcool/alumni/services/logger"
)

func TestTranslator_T(t *testing.T) {
	tr := NewTranslator("id", logsvc.NewDiscardLogger())

	tests := []struct {
		name   string
		locale string
		key    string
		data   map[string]interface{}
		want   string
	}{
		{name: "english", locale: "en", key: "checkin.success", want: "Check-in successful. Enjoy the event!"},
		{name: "accept-language header", locale: "en-US,en;q=0.9", key: "university.exists", want: "A university with this name already exists."},
		{name: "template data", locale: "en", key: "password.too_short", data: map[string]interface{}{"Min": 6}, want: "The password must contain at least 6 characters."},
		{name: "unknown key", locale: "en", key: "nope.nope", want: "nope.nope"},
		{name: "empty key", locale: "en", key: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tr.T(tc.locale, tc.key, tc.data))
		})
	}
}

func TestTranslator_DefaultLocale(t *testing.T) {
	tr := NewTranslator("id", logsvc.NewDiscardLogger())

	// unsupported and missing locales fall back to Indonesian
	want := tr.T("id", "checkin.success", nil)
	assert.NotEqual(t, "checkin.success", want)
	assert.Equal(t, want, tr.T("", "checkin.success", nil))
	assert.Equal(t, want, tr.T("ja", "checkin.success", nil))
}
