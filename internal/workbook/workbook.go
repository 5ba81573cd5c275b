// Package workbook reads and writes the resident spreadsheets used by village
// operators for bulk import, export and the blank template.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/xuri/excelize/v2"
)

// column binds a spreadsheet header to a record field.
type column struct {
	header string
	get    func(r records.Record) any
	set    func(in *records.Input, v string)
}

// columns is the export order. The date of birth column is handled separately on read.
var columns = []column{
	{config.ColMandal, func(r records.Record) any { return r.MandalName }, func(in *records.Input, v string) { in.MandalName = v }},
	{config.ColVillage, func(r records.Record) any { return r.VillageName }, func(in *records.Input, v string) { in.VillageName = v }},
	{config.ColRationCard, func(r records.Record) any { return r.RationCard }, func(in *records.Input, v string) { in.RationCard = v }},
	{config.ColVoterCard, func(r records.Record) any { return r.VoterCard }, func(in *records.Input, v string) { in.VoterCard = v }},
	{config.ColName, func(r records.Record) any { return r.Name }, func(in *records.Input, v string) { in.Name = v }},
	{config.ColFamilyPersons, func(r records.Record) any { return r.NumFamilyPersons }, func(in *records.Input, v string) { in.NumFamilyPersons = records.ParseCount(v) }},
	{config.ColAddress, func(r records.Record) any { return r.Address }, func(in *records.Input, v string) { in.Address = v }},
	{config.ColPhone, func(r records.Record) any { return r.PhoneNumber }, func(in *records.Input, v string) { in.PhoneNumber = v }},
	{config.ColAadhar, func(r records.Record) any { return r.Aadhar }, func(in *records.Input, v string) { in.Aadhar = v }},
	{config.ColGender, func(r records.Record) any { return r.Gender }, func(in *records.Input, v string) { in.Gender = v }},
	{config.ColDateOfBirth, dobCell, nil},
	{config.ColQualification, func(r records.Record) any { return r.Qualification }, func(in *records.Input, v string) { in.Qualification = v }},
	{config.ColCaste, func(r records.Record) any { return r.Caste }, func(in *records.Input, v string) { in.Caste = v }},
	{config.ColSubCaste, func(r records.Record) any { return r.SubCaste }, func(in *records.Input, v string) { in.SubCaste = v }},
	{config.ColOccupation, func(r records.Record) any { return r.Occupation }, func(in *records.Input, v string) { in.Occupation = v }},
	{config.ColNeedEmployment, func(r records.Record) any { return r.NeedEmployment }, func(in *records.Input, v string) { in.NeedEmployment = v }},
	{config.ColArogyasri, func(r records.Record) any { return r.ArogyasriCardNumber }, func(in *records.Input, v string) { in.ArogyasriCardNumber = v }},
	{config.ColSHGMember, func(r records.Record) any { return r.SHGMember }, func(in *records.Input, v string) { in.SHGMember = v }},
	{config.ColSchemes, func(r records.Record) any { return r.SchemesEligible }, func(in *records.Input, v string) { in.SchemesEligible = v }},
	{config.ColRemarks, func(r records.Record) any { return r.Remarks }, func(in *records.Input, v string) { in.Remarks = v }},
}

// aliases maps legacy header spellings found in field sheets to canonical headers.
var aliases = map[string]string{
	config.ColMandalLegacy: config.ColMandal,
	config.ColNameLong:     config.ColName,
}

func dobCell(r records.Record) any {
	if r.DateOfBirth == nil {
		return ""
	}
	return r.DateOfBirth.DMY()
}

// normalizeHeader uppercases and collapses whitespace so "Sub  Caste " matches "SUB CASTE".
func normalizeHeader(h string) string {
	h = strings.ToUpper(strings.Join(strings.Fields(h), " "))
	if canonical, ok := aliases[h]; ok {
		return canonical
	}
	return h
}

// ReadRows parses the first sheet of an xlsx workbook. The first row holds the
// headers; unknown columns are ignored and blank rows skipped.
//
// Cells are read raw, so a date formatted cell arrives as its serial number
// (float64) and the engine decides how to read it.
func ReadRows(r io.Reader) ([]records.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrWorkbookOpen, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New(config.ErrWorkbookEmpty)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrWorkbookOpen, err)
	}
	if len(rows) == 0 {
		return nil, errors.New(config.ErrWorkbookEmpty)
	}

	setters := make(map[string]func(*records.Input, string), len(columns))
	for _, c := range columns {
		if c.set != nil {
			setters[c.header] = c.set
		}
	}

	header := make([]string, len(rows[0]))
	known := false
	for i, h := range rows[0] {
		header[i] = normalizeHeader(h)
		if _, ok := setters[header[i]]; ok || header[i] == config.ColDateOfBirth {
			known = true
		}
	}
	if !known {
		return nil, errors.New(config.ErrWorkbookEmpty)
	}

	out := make([]records.ImportRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if isBlankRow(cells) {
			continue
		}
		row := records.ImportRow{Row: i + config.FirstDataRow}
		for j, cell := range cells {
			if j >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if header[j] == config.ColDateOfBirth {
				row.DateOfBirth = dobValue(cell)
				continue
			}
			if set, ok := setters[header[j]]; ok && cell != "" {
				set(&row.Input, cell)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// dobValue keeps serial numbers numeric and everything else as text.
func dobValue(cell string) any {
	if cell == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteRecords renders recs as a single sheet workbook.
func WriteRecords(w io.Writer, recs []records.Record) error {
	f, sheet, err := newSheet(config.SheetRecords)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for i, r := range recs {
		values := make([]any, len(columns))
		for j, c := range columns {
			values[j] = c.get(r)
		}
		if err := setRow(f, sheet, i+config.FirstDataRow, values); err != nil {
			return err
		}
	}
	return write(f, w)
}

// WriteTemplate renders the blank import template with one sample row.
func WriteTemplate(w io.Writer) error {
	f, sheet, err := newSheet(config.SheetTemplate)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sample := records.Record{
		MandalName:       "Sample Mandal",
		VillageName:      "Sample Village",
		Name:             "Sample Name",
		NumFamilyPersons: 4,
		Address:          "House No. 1-23",
		PhoneNumber:      "9876543210",
		Gender:           "Male",
		Qualification:    "Graduate",
		Occupation:       "Farmer",
	}
	values := make([]any, len(columns))
	for j, c := range columns {
		values[j] = c.get(sample)
	}
	// Shown as text so operators see the expected format.
	values[dobIndex()] = "15-08-1990"

	if err := setRow(f, sheet, config.FirstDataRow, values); err != nil {
		return err
	}
	return write(f, w)
}

func dobIndex() int {
	for i, c := range columns {
		if c.header == config.ColDateOfBirth {
			return i
		}
	}
	return -1
}

// newSheet creates a workbook whose only sheet is named name, with a bold header row.
func newSheet(name string) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("%s: %w", config.ErrWorkbookWrite, err)
	}

	headers := make([]any, len(columns))
	for i, c := range columns {
		headers[i] = c.header
	}
	if err := setRow(f, name, 1, headers); err != nil {
		_ = f.Close()
		return nil, "", err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		err = f.SetRowStyle(name, 1, 1, style)
	}
	if err == nil {
		last, _ := excelize.ColumnNumberToName(len(columns))
		err = f.SetColWidth(name, "A", last, 20)
	}
	if err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("%s: %w", config.ErrWorkbookWrite, err)
	}
	return f, name, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrWorkbookWrite, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s: %w", config.ErrWorkbookWrite, err)
	}
	return nil
}

func write(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return fmt.Errorf("%s: %w", config.ErrWorkbookWrite, err)
	}
	return nil
}
