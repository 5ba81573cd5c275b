// Package locale loads the embedded message catalogs used for SMS templates and
// calendar event titles.
package locale

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/smart-village/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Catalog holds every embedded language.
type Catalog struct {
	bundle    *i18n.Bundle
	languages []string
}

// NewCatalog loads locales/active.<lang>.json files.
func NewCatalog() (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc(config.LocaleFormat, json.Unmarshal)

	entries, err := localeFS.ReadDir(config.LocalesDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrLocalesAccess, err)
	}

	var langs []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, config.LocalePrefix) || !strings.HasSuffix(name, config.LocaleSuffix) {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}
		langCode := strings.TrimSuffix(strings.TrimPrefix(name, config.LocalePrefix), config.LocaleSuffix)

		if _, err := bundle.LoadMessageFileFS(localeFS, config.LocalesDir+"/"+name); err != nil {
			return nil, fmt.Errorf("%s %s: %w", config.ErrLocaleLoad, name, err)
		}
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, langCode,
		)
		langs = append(langs, langCode)
	}
	sort.Strings(langs)

	return &Catalog{bundle: bundle, languages: langs}, nil
}

// Languages lists the loaded language codes.
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.languages...)
}

// Supports reports whether lang has its own catalog.
func (c *Catalog) Supports(lang string) bool {
	for _, l := range c.languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Message translates key into lang, falling back to English and then to the key itself.
func (c *Catalog) Message(lang, key string, data map[string]any) string {
	loc := i18n.NewLocalizer(c.bundle, lang, config.DefaultLanguage)
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyLang, lang,
			config.LogKeyError, err,
		)
		return key
	}
	return msg
}

// BirthdaySummary returns a localized calendar title formatter.
func (c *Catalog) BirthdaySummary(lang string) func(name string, age int) string {
	return func(name string, age int) string {
		if age == 0 {
			return c.Message(lang, config.TKeyEvtSummaryBirth, map[string]any{config.TemplateNamed: name})
		}
		return c.Message(lang, config.TKeyEvtSummaryAge, map[string]any{
			config.TemplateNamed: name,
			config.TemplateAge:   age,
		})
	}
}
