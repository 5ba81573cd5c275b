package sms

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/tartampluch/smart-village/internal/config"
)

// NormalizeNumber converts a phone number to E.164. Numbers without an
// international prefix are read in the region of countryCode (e.g. "+91").
// Spaces, dashes, dots and parentheses are ignored; letters and other
// symbols are rejected rather than read as vanity digits.
func NormalizeNumber(raw, countryCode string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' && i == 0:
		case strings.ContainsRune(" -.()", r):
		default:
			return "", false
		}
	}

	num, err := phonenumbers.Parse(raw, regionFor(countryCode))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// regionFor maps a calling code such as "+91" to its main region ("IN").
func regionFor(countryCode string) string {
	cc, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(countryCode), "+"))
	if err != nil {
		cc, _ = strconv.Atoi(strings.TrimPrefix(config.DefaultCountryCode, "+"))
	}
	return phonenumbers.GetRegionCodeForCountryCode(cc)
}

// NormalizeNumbers normalizes and deduplicates numbers, keeping the first-seen order.
// Rejected inputs are returned separately.
func NormalizeNumbers(raw []string, countryCode string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, n := range raw {
		norm, ok := NormalizeNumber(n, countryCode)
		if !ok {
			if strings.TrimSpace(n) != "" {
				invalid = append(invalid, n)
			}
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		valid = append(valid, norm)
	}
	return valid, invalid
}
