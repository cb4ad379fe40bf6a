// Package i18nsvc localizes user-facing messages from the embedded locale files.
package i18nsvc

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/trezcool/alumni/core"
	appfs "github.com/trezcool/alumni/fs"
)

var localesDir = "locales"

type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	logger          core.Logger
}

var _ core.Localizer = (*Translator)(nil)

// NewTranslator loads every embedded active.*.toml file; defaultLocale is used when
// a message is missing from the requested locale.
func NewTranslator(defaultLocale string, logger core.Logger) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.Indonesian
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(appfs.FS, path.Join(localesDir, "active.*.toml"))
	if err != nil {
		logger.Error(fmt.Sprintf("listing locale files: %v", err), err)
	}
	for _, file := range files {
		if _, err = bundle.LoadMessageFileFS(appfs.FS, file); err != nil {
			logger.Error(fmt.Sprintf("loading %s: %v", file, err), err)
		}
	}

	return &Translator{bundle: bundle, defaultLanguage: tag, logger: logger}
}

// T renders the message identified by key for locale, which may be an Accept-Language value.
// It falls back to the default locale, then to the key itself.
func (t *Translator) T(locale, key string, data map[string]interface{}) string {
	if key == "" {
		return ""
	}
	languages := make([]string, 0, 2)
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, t.defaultLanguage.String())

	msg, err := i18n.NewLocalizer(t.bundle, languages...).Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		t.logger.Warn(fmt.Sprintf("localizing %s (%v): %v", key, languages, err))
		return key
	}
	return msg
}
