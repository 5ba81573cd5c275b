package engine

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
)

// MaxSerial is 9999-12-31, the last date a spreadsheet serial can express.
const MaxSerial = 2958465

// serialEpoch is serial day 0.
var serialEpoch = CivilDate{Year: config.SerialEpochYear, Month: config.SerialEpochMonth, Day: config.SerialEpochDay}

// Normalize turns a raw date of birth into a CivilDate.
//
// Accepted inputs:
//   - string "DD-MM-YYYY", fields taken literally
//   - numbers, read as spreadsheet serial days (time of day discarded)
//   - time.Time and CivilDate values, whose fields are passed through untouched
//
// Anything else, including empty input and dates that do not exist, yields false.
// A false result means "no date of birth", never an error.
func Normalize(raw any) (CivilDate, bool) {
	switch v := raw.(type) {
	case nil:
		return CivilDate{}, false
	case CivilDate:
		return v, v.IsValid()
	case *CivilDate:
		if v == nil {
			return CivilDate{}, false
		}
		return *v, v.IsValid()
	case time.Time:
		if v.IsZero() {
			return CivilDate{}, false
		}
		return FromTime(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return CivilDate{}, false
		}
		return FromTime(*v), true
	case string:
		if strings.TrimSpace(v) == "" {
			return CivilDate{}, false
		}
		return ParseDMY(v)
	case float64:
		return FromSerial(v)
	case float32:
		return FromSerial(float64(v))
	case int:
		return FromSerial(float64(v))
	case int32:
		return FromSerial(float64(v))
	case int64:
		return FromSerial(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return CivilDate{}, false
		}
		return FromSerial(f)
	default:
		return CivilDate{}, false
	}
}

// FromSerial converts a spreadsheet serial day count. 25569 is 1970-01-01.
func FromSerial(serial float64) (CivilDate, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return CivilDate{}, false
	}
	n := math.Floor(serial)
	if n < 0 || n > MaxSerial {
		return CivilDate{}, false
	}
	return serialEpoch.AddDays(int(n)), true
}

// Serial is the inverse of FromSerial.
func (d CivilDate) Serial() int {
	return DaysBetween(serialEpoch, d)
}
