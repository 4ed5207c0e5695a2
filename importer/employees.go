package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/judyrop/catalog-backend/models"
)

var clockLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM", "3:04PM"}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "2006-01-02 15:04:05"}

// ImportEmployees reads an employee file and upserts every row by email.
func (im *Importer) ImportEmployees(ctx context.Context, r io.Reader, format Format) (*Report, error) {
	rows, err := ReadTable(r, format)
	if err != nil {
		return nil, err
	}
	recs, err := Records(rows, employeeColumns, "email")
	if err != nil {
		return nil, err
	}
	return im.Employees(ctx, recs), nil
}

func (im *Importer) Employees(ctx context.Context, recs []Record) *Report {
	report := &Report{Rows: make([]Outcome, 0, len(recs))}
	for _, rec := range recs {
		out := Outcome{Line: rec.Line, Key: rec.Get("email")}
		err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			status, err := employeeRow(tx, rec)
			out.Status = status
			return err
		})
		if err != nil {
			out.Status, out.Err = StatusFailed, err
		}
		report.Rows = append(report.Rows, out)
	}
	im.finish("employee", report)
	return report
}

func employeeRow(tx *gorm.DB, rec Record) (Status, error) {
	email := strings.ToLower(rec.Get("email"))
	if email == "" || !strings.Contains(email, "@") {
		return "", invalidValue("email", email, nil)
	}

	var found []models.Employee
	if err := tx.Where("email = ?", email).Limit(1).Find(&found).Error; err != nil {
		return "", err
	}
	e := models.Employee{Email: email}
	if len(found) > 0 {
		e = found[0]
	}
	before := e

	if v, ok := rec.Lookup("name"); ok {
		e.Name = v
	}
	if v, ok := rec.Lookup("role"); ok {
		e.Role = v
	}
	if e.Name == "" || e.Role == "" {
		return "", invalidValue("name/role", e.Name+"/"+e.Role, errors.New("required"))
	}
	if v, ok := rec.Lookup("phone"); ok {
		e.Phone = nil
		if v != "" {
			if len(v) > 15 {
				return "", invalidValue("phone", v, errors.New("longer than 15 characters"))
			}
			e.Phone = &v
		}
	}
	if v, ok := rec.Lookup("start_time"); ok && v != "" {
		t, err := parseLayouts(v, clockLayouts)
		if err != nil {
			return "", invalidValue("start_time", v, err)
		}
		e.StartTime = datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0)
	} else if len(found) == 0 {
		return "", invalidValue("start_time", v, errors.New("required"))
	}
	if v, ok := rec.Lookup("birthday"); ok {
		e.Birthday = nil
		if v != "" {
			t, err := parseLayouts(v, dateLayouts)
			if err != nil {
				return "", invalidValue("birthday", v, err)
			}
			e.Birthday = &t
		}
	}

	if len(found) > 0 && sameEmployee(before, e) {
		return StatusSkipped, nil
	}
	if err := tx.Save(&e).Error; err != nil {
		return "", err
	}
	if len(found) > 0 {
		return StatusUpdated, nil
	}
	return StatusCreated, nil
}

func sameEmployee(a, b models.Employee) bool {
	return a.Name == b.Name &&
		a.Role == b.Role &&
		optional(a.Phone) == optional(b.Phone) &&
		a.StartTime == b.StartTime &&
		formatDate(a.Birthday) == formatDate(b.Birthday)
}

func parseLayouts(v string, layouts []string) (time.Time, error) {
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, strings.ToUpper(v)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
