package locale_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/locale"
)

func loadLocaleFile(t *testing.T, lang string) map[string]any {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("locales", config.LocalePrefix+lang+config.LocaleSuffix))
	require.NoError(t, err, "must load locale %s", lang)

	var m map[string]any
	require.NoError(t, json.Unmarshal(content, &m), "JSON must be valid")
	return m
}

// TestI18nIntegrity ensures that every translation key defined in config.go
// exists in every locale file, and that the locale files agree with each other.
func TestI18nIntegrity(t *testing.T) {
	keysToCheck := []string{
		config.TKeyEvtSummary,
		config.TKeyEvtSummaryAge,
		config.TKeyEvtSummaryBirth,
	}
	for _, id := range config.SMSTemplateIDs {
		key := config.TKeyTplPrefix + id
		keysToCheck = append(keysToCheck, key+config.TKeyNameSuffix)
		if key != config.TKeyTplCustom {
			keysToCheck = append(keysToCheck, key)
		}
	}

	en := loadLocaleFile(t, "en")
	te := loadLocaleFile(t, "te")

	for _, k := range keysToCheck {
		assert.Containsf(t, en, k, "Key '%s' defined in config.go is missing in active.en.json", k)
		assert.Containsf(t, te, k, "Key '%s' defined in config.go is missing in active.te.json", k)
	}

	for k := range en {
		if strings.HasPrefix(k, "_") {
			continue
		}
		assert.Containsf(t, te, k, "Key '%s' exists in English but not in Telugu", k)
	}
}

// TestBirthdayTemplatesPersonalize checks that every birthday text can be personalized.
func TestBirthdayTemplatesPersonalize(t *testing.T) {
	for _, lang := range []string{"en", "te"} {
		m := loadLocaleFile(t, lang)
		text, ok := m[config.TKeyTplBirthday].(string)
		require.True(t, ok)
		assert.Contains(t, text, config.NamePlaceholder, lang)
	}
}

func TestCatalog_Message(t *testing.T) {
	c, err := locale.NewCatalog()
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "te"}, c.Languages())
	assert.True(t, c.Supports("te"))
	assert.False(t, c.Supports("fr"))

	summary := c.BirthdaySummary("en")
	assert.Equal(t, "Birthday: Ravi (45)", summary("Ravi", 45))
	assert.Equal(t, "Birthday: Baby (birth)", summary("Baby", 0))

	assert.Equal(t, "పుట్టినరోజు: Ravi (45)", c.BirthdaySummary("te")("Ravi", 45))

	// Unknown languages fall back to English, unknown keys to the key itself.
	assert.Equal(t, "Birthday wishes", c.Message("fr", "tpl_birthday_name", nil))
	assert.Equal(t, "no_such_key", c.Message("en", "no_such_key", nil))
}
