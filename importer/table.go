package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseFormat accepts a format name or a file name with a known extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(s); ext != "" {
		s = ext[1:]
	}
	switch s {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType is the MIME type exports are served with.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Record is one data row keyed by canonical column name.
type Record struct {
	Line   int
	values map[string]string
}

// Lookup returns the trimmed cell for column and whether the file has it.
func (r Record) Lookup(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

func (r Record) Get(column string) string {
	return r.values[column]
}

// Columns maps a header alias to its canonical column name. Keys are slugs,
// so "Descripción" and "descripcion" hit the same entry. Underscored names
// are listed in both spellings.
type Columns map[string]string

var productColumns = Columns{
	"name": "name", "nombre": "name",
	"description": "description", "descripcion": "description",
	"price": "price", "precio": "price",
	"category": "category", "categoria": "category",
	"image": "image", "imagen": "image",
	"stock": "stock",
	"featured": "featured", "es_mas_vendido": "featured", "es-mas-vendido": "featured",
	"accessories": "accessories", "accesorios": "accessories", "refacciones": "accessories",
}

var employeeColumns = Columns{
	"name": "name", "nombre": "name",
	"role": "role", "puesto": "role",
	"email": "email",
	"phone": "phone", "telefono": "phone",
	"start_time": "start_time", "start-time": "start_time",
	"horario_entrada": "start_time", "horario-entrada": "start_time",
	"birthday": "birthday", "cumpleanos": "birthday",
}

// ProductHeader is the column order used for product exports.
var ProductHeader = []string{"name", "description", "price", "category", "image", "stock", "featured", "accessories"}

// EmployeeHeader is the column order used for employee exports.
var EmployeeHeader = []string{"name", "role", "email", "phone", "start_time", "birthday"}

// ReadTable reads every row of a CSV file or of the first XLSX sheet.
func ReadTable(r io.Reader, format Format) ([][]string, error) {
	switch format {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
		}
		return pad(rows), nil
	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
		}
		return pad(rows), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// pad extends short rows to the header width; spreadsheets drop trailing
// empty cells.
func pad(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	width := len(rows[0])
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows
}

// Records maps the header row through cols and returns the non-blank data
// rows. Unknown columns are ignored; the column named required must exist.
func Records(rows [][]string, cols Columns, required string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file has no header row", ErrInvalidValue)
	}
	index := map[int]string{}
	found := false
	for i, h := range rows[0] {
		if name, ok := cols[slug.Make(h)]; ok {
			index[i] = name
			found = found || name == required
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: missing %q column", ErrInvalidValue, required)
	}

	var out []Record
	for n, row := range rows[1:] {
		rec := Record{Line: n + 2, values: make(map[string]string, len(index))}
		blank := true
		for i, name := range index {
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			rec.values[name] = v
			blank = blank && v == ""
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out, nil
}

// WriteTable writes header and rows as CSV or as a single XLSX sheet.
func WriteTable(w io.Writer, format Format, header []string, rows [][]string) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	case FormatXLSX:
		f := excelize.NewFile()
		defer f.Close()
		sheet := f.GetSheetName(0)
		for i, row := range append([][]string{header}, rows...) {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
				return fmt.Errorf("write xlsx row %d: %w", i+1, err)
			}
		}
		if err := f.Write(w); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
