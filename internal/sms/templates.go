package sms

import (
	"strings"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/locale"
)

// Template is a predefined message offered to the operator.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"template"`
}

// Templates lists the message templates in lang. The custom template has no text.
func Templates(c *locale.Catalog, lang string) []Template {
	out := make([]Template, 0, len(config.SMSTemplateIDs))
	for _, id := range config.SMSTemplateIDs {
		key := config.TKeyTplPrefix + id
		t := Template{ID: id, Name: c.Message(lang, key+config.TKeyNameSuffix, nil)}
		if key != config.TKeyTplCustom {
			t.Text = c.Message(lang, key, nil)
		}
		out = append(out, t)
	}
	return out
}

// BirthdayText returns the localized birthday greeting, or the built-in English one
// when the catalog has none.
func BirthdayText(c *locale.Catalog, lang string) string {
	if c == nil {
		return config.FallbackBirthdaySMS
	}
	text := c.Message(lang, config.TKeyTplBirthday, nil)
	if text == config.TKeyTplBirthday {
		return config.FallbackBirthdaySMS
	}
	return text
}

// Personalize replaces every [NAME] placeholder with name.
func Personalize(text, name string) string {
	return strings.ReplaceAll(text, config.NamePlaceholder, strings.TrimSpace(name))
}
