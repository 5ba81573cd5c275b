package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tartampluch/smart-village/internal/engine"
)

// Record is one household member row.
type Record struct {
	ID                  int64             `json:"id" db:"id"`
	MandalName          string            `json:"mandalName" db:"mandal_name"`
	VillageName         string            `json:"villageName" db:"village_name"`
	RationCard          string            `json:"rationCard" db:"ration_card"`
	VoterCard           string            `json:"voterCard" db:"voter_card"`
	Name                string            `json:"name" db:"name"`
	NumFamilyPersons    int               `json:"numFamilyPersons" db:"num_family_persons"`
	Address             string            `json:"address" db:"address"`
	PhoneNumber         string            `json:"phoneNumber" db:"phone_number"`
	Aadhar              string            `json:"aadhar" db:"aadhar"`
	Gender              string            `json:"gender" db:"gender"`
	DateOfBirth         *engine.CivilDate `json:"dateOfBirth" db:"date_of_birth"`
	Qualification       string            `json:"qualification" db:"qualification"`
	Caste               string            `json:"caste" db:"caste"`
	SubCaste            string            `json:"subCaste" db:"sub_caste"`
	Occupation          string            `json:"occupation" db:"occupation"`
	NeedEmployment      string            `json:"needEmployment" db:"need_employment"`
	ArogyasriCardNumber string            `json:"arogyasriCardNumber" db:"arogyasri_card_number"`
	SHGMember           string            `json:"shgMember" db:"shg_member"`
	SchemesEligible     string            `json:"schemesEligible" db:"schemes_eligible"`
	Remarks             string            `json:"remarks" db:"remarks"`
	BirthdayThisWeek    bool              `json:"birthdayThisWeek" db:"birthday_this_week"`
	BirthdayThisMonth   bool              `json:"birthdayThisMonth" db:"birthday_this_month"`
	CreatedAt           time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time         `json:"updatedAt" db:"updated_at"`
}

// Key is the natural key used for deduplication.
type Key struct {
	Mandal  string
	Village string
	Name    string
	Phone   string
}

// Key returns the record's natural key.
func (r Record) Key() Key {
	return Key{Mandal: r.MandalName, Village: r.VillageName, Name: r.Name, Phone: r.PhoneNumber}
}

// String joins the key parts with a unit separator, which cannot appear in typed input.
func (k Key) String() string {
	return strings.Join([]string{k.Mandal, k.Village, k.Name, k.Phone}, "\x1f")
}

// ApplyFlags stores the window flags computed for today.
func (r *Record) ApplyFlags(today engine.CivilDate) {
	flags := engine.ComputeFlags(r.DateOfBirth, today)
	r.BirthdayThisWeek = flags.ThisWeek
	r.BirthdayThisMonth = flags.ThisMonth
}

// Input is the writable part of a record, as sent by clients and import rows.
type Input struct {
	MandalName          string `json:"mandalName" validate:"notblank,max=200"`
	VillageName         string `json:"villageName" validate:"notblank,max=200"`
	RationCard          string `json:"rationCard" validate:"max=100"`
	VoterCard           string `json:"voterCard" validate:"max=100"`
	Name                string `json:"name" validate:"notblank,max=200"`
	NumFamilyPersons    Count  `json:"numFamilyPersons" validate:"gte=0,lte=1000"`
	Address             string `json:"address" validate:"max=500"`
	PhoneNumber         string `json:"phoneNumber" validate:"notblank,max=20"`
	Aadhar              string `json:"aadhar" validate:"max=20"`
	Gender              string `json:"gender" validate:"max=20"`
	DateOfBirth         string `json:"dateOfBirth"`
	Qualification       string `json:"qualification" validate:"max=200"`
	Caste               string `json:"caste" validate:"max=100"`
	SubCaste            string `json:"subCaste" validate:"max=100"`
	Occupation          string `json:"occupation" validate:"max=200"`
	NeedEmployment      string `json:"needEmployment" validate:"max=100"`
	ArogyasriCardNumber string `json:"arogyasriCardNumber" validate:"max=100"`
	SHGMember           string `json:"shgMember" validate:"max=100"`
	SchemesEligible     string `json:"schemesEligible" validate:"max=500"`
	Remarks             string `json:"remarks" validate:"max=1000"`
}

// trimmed returns a copy with surrounding whitespace removed from every text field.
func (in Input) trimmed() Input {
	for _, f := range []*string{
		&in.MandalName, &in.VillageName, &in.RationCard, &in.VoterCard, &in.Name,
		&in.Address, &in.PhoneNumber, &in.Aadhar, &in.Gender, &in.DateOfBirth,
		&in.Qualification, &in.Caste, &in.SubCaste, &in.Occupation, &in.NeedEmployment,
		&in.ArogyasriCardNumber, &in.SHGMember, &in.SchemesEligible, &in.Remarks,
	} {
		*f = strings.TrimSpace(*f)
	}
	return in
}

// Key returns the natural key of the (trimmed) input.
func (in Input) Key() Key {
	return Key{Mandal: in.MandalName, Village: in.VillageName, Name: in.Name, Phone: in.PhoneNumber}
}

// apply copies the input onto r. The date of birth is set separately.
func (in Input) apply(r *Record) {
	r.MandalName = in.MandalName
	r.VillageName = in.VillageName
	r.RationCard = in.RationCard
	r.VoterCard = in.VoterCard
	r.Name = in.Name
	r.NumFamilyPersons = int(in.NumFamilyPersons)
	r.Address = in.Address
	r.PhoneNumber = in.PhoneNumber
	r.Aadhar = in.Aadhar
	r.Gender = in.Gender
	r.Qualification = in.Qualification
	r.Caste = in.Caste
	r.SubCaste = in.SubCaste
	r.Occupation = in.Occupation
	r.NeedEmployment = in.NeedEmployment
	r.ArogyasriCardNumber = in.ArogyasriCardNumber
	r.SHGMember = in.SHGMember
	r.SchemesEligible = in.SchemesEligible
	r.Remarks = in.Remarks
}

// InputFromRecord is the inverse of apply, used by restore and edits.
func InputFromRecord(r Record) Input {
	in := Input{
		MandalName:          r.MandalName,
		VillageName:         r.VillageName,
		RationCard:          r.RationCard,
		VoterCard:           r.VoterCard,
		Name:                r.Name,
		NumFamilyPersons:    Count(r.NumFamilyPersons),
		Address:             r.Address,
		PhoneNumber:         r.PhoneNumber,
		Aadhar:              r.Aadhar,
		Gender:              r.Gender,
		Qualification:       r.Qualification,
		Caste:               r.Caste,
		SubCaste:            r.SubCaste,
		Occupation:          r.Occupation,
		NeedEmployment:      r.NeedEmployment,
		ArogyasriCardNumber: r.ArogyasriCardNumber,
		SHGMember:           r.SHGMember,
		SchemesEligible:     r.SchemesEligible,
		Remarks:             r.Remarks,
	}
	if r.DateOfBirth != nil {
		in.DateOfBirth = r.DateOfBirth.String()
	}
	return in
}

// Changes is a JSON object of record fields to edit. Keys left out keep their
// stored value and a null value clears the field.
type Changes json.RawMessage

// Merge applies the changes on top of base.
func (c Changes) Merge(base Input) (Input, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c, &fields); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for k, v := range fields {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			fields[k] = json.RawMessage(`""`)
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return base, err
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return base, nil
}

// Count is a non-negative integer that clients send either as a number or as text.
// Unparseable text counts as zero.
type Count int

// UnmarshalJSON accepts 3, "3", "" and null.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	*c = ParseCount(s)
	return nil
}

// ParseCount reads the leading integer of s, 0 when there is none.
func ParseCount(s string) Count {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Count(int(f))
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return Count(n)
}

// Stats summarizes the table. The birthday counters read the stored flags.
type Stats struct {
	TotalRecords       int64 `json:"totalRecords"`
	TotalMandals       int64 `json:"totalMandals"`
	TotalVillages      int64 `json:"totalVillages"`
	BirthdaysThisWeek  int64 `json:"birthdaysThisWeek"`
	BirthdaysThisMonth int64 `json:"birthdaysThisMonth"`
}

// UpcomingBirthday is a record projected onto its next birthday. Never persisted.
type UpcomingBirthday struct {
	Record
	engine.Occurrence
	CurrentAge int `json:"currentAge"`
}

// Flag selects one of the stored birthday flags.
type Flag int

const (
	FlagThisWeek Flag = iota
	FlagThisMonth
)

// Page selects a slice of the id-descending listing. Size 0 means everything.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Filter narrows a search. Text fields match case-insensitive substrings; age bounds
// only keep records with a date of birth.
type Filter struct {
	Name          string
	Mandal        string
	Village       string
	Phone         string
	Gender        string
	Qualification string
	Occupation    string
	Caste         string
	MinAge        *int
	MaxAge        *int
}

// HasAge reports whether age bounds are set.
func (f Filter) HasAge() bool {
	return f.MinAge != nil || f.MaxAge != nil
}

// BirthUpdate is a date of birth and flags rewrite for one record.
type BirthUpdate struct {
	ID          int64
	DateOfBirth *engine.CivilDate
	Flags       engine.WindowFlags
}

// MaintenanceRun is an audit entry for a data migration or bulk recomputation.
type MaintenanceRun struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	OffsetDays int       `json:"offsetDays" db:"offset_days"`
	Touched    int64     `json:"touched" db:"touched"`
	RanAt      time.Time `json:"ranAt" db:"ran_at"`
}
