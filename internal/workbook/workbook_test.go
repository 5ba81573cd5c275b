package workbook

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes rows (header first) to an in-memory xlsx.
func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, values := range rows {
		for j, v := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestReadRows(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"MANADAL NAME", " village  name ", "NAME OF THE PERSON", "PHONE NUMBER", "DATE OF BIRTH", "Sub Caste", "NUMBER OF FAMILY PERSONS", "IGNORED"},
		{"Kodair", "Rangapur", "Ravi", 9876543210, "12-03-1990", "BC-A", "4", "x"},
		{"Kodair", "Rangapur", "Lakshmi", "9123456780", time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC), "", 3},
		{},
		{"Kodair", "Rangapur", "Somaiah", "9000000000"},
	})

	rows, err := ReadRows(buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[0].Row)
	assert.Equal(t, "Kodair", rows[0].Input.MandalName)
	assert.Equal(t, "Rangapur", rows[0].Input.VillageName)
	assert.Equal(t, "Ravi", rows[0].Input.Name)
	assert.Equal(t, "9876543210", rows[0].Input.PhoneNumber)
	assert.Equal(t, "BC-A", rows[0].Input.SubCaste)
	assert.Equal(t, records.Count(4), rows[0].Input.NumFamilyPersons)
	assert.Equal(t, "12-03-1990", rows[0].DateOfBirth)

	// Date formatted cells come back as serial numbers.
	assert.Equal(t, 3, rows[1].Row)
	assert.Equal(t, float64(32874), rows[1].DateOfBirth)
	d, ok := engine.Normalize(rows[1].DateOfBirth)
	require.True(t, ok)
	assert.Equal(t, "1990-01-01", d.String())

	// The blank row 4 is skipped but numbering follows the sheet.
	assert.Equal(t, 5, rows[2].Row)
	assert.Nil(t, rows[2].DateOfBirth)
}

func TestReadRows_Errors(t *testing.T) {
	_, err := ReadRows(bytes.NewBufferString("not a workbook"))
	assert.Error(t, err)

	_, err = ReadRows(buildWorkbook(t, nil))
	assert.Error(t, err)

	_, err = ReadRows(buildWorkbook(t, [][]any{{"FOO", "BAR"}, {"1", "2"}}))
	assert.Error(t, err)
}

func TestWriteRecords_ReadBack(t *testing.T) {
	dob := engine.CivilDate{Year: 1990, Month: time.March, Day: 12}
	recs := []records.Record{
		{MandalName: "Kodair", VillageName: "Rangapur", Name: "Ravi", PhoneNumber: "9876543210", NumFamilyPersons: 5, DateOfBirth: &dob, Remarks: "ok"},
		{MandalName: "Kodair", VillageName: "Rangapur", Name: "Devi", PhoneNumber: "9000000000"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, recs))

	rows, err := ReadRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Ravi", rows[0].Input.Name)
	assert.Equal(t, records.Count(5), rows[0].Input.NumFamilyPersons)
	assert.Equal(t, "12-03-1990", rows[0].DateOfBirth)
	assert.Equal(t, "ok", rows[0].Input.Remarks)
	assert.Nil(t, rows[1].DateOfBirth)
}

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{"Template"}, f.GetSheetList())

	rows, err := ReadRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sample Name", rows[0].Input.Name)
	d, ok := engine.Normalize(rows[0].DateOfBirth)
	require.True(t, ok)
	assert.Equal(t, "15-08-1990", d.DMY())
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"MANADAL NAME":       "MANDAL NAME",
		"  Mandal   Name ":   "MANDAL NAME",
		"name of the person": "NAME",
		"Caste":              "CASTE",
		"Date of Birth":      "DATE OF BIRTH",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeHeader(in), in)
	}
}
