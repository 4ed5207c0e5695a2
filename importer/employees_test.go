package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judyrop/catalog-backend/models"
)

func TestEmployeesUpsertByEmail(t *testing.T) {
	f := newFixture(t, Options{})
	file := strings.Join([]string{
		"nombre,puesto,email,telefono,horario_entrada,cumpleanos",
		"Ana Torres,Cajera,Ana@Ferre.mx,5512345678,09:00,1990-04-12",
		"Luis Mora,Almacen,luis@ferre.mx,,8:30 am,",
	}, "\n")

	report, err := f.importer.ImportEmployees(t.Context(), strings.NewReader(file), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created, report.Rows)

	var ana models.Employee
	require.NoError(t, f.db.Where("email = ?", "ana@ferre.mx").First(&ana).Error)
	assert.Equal(t, "Cajera", ana.Role)
	require.NotNil(t, ana.Phone)
	assert.Equal(t, "5512345678", *ana.Phone)
	assert.Equal(t, "09:00:00", ana.StartTime.String())
	require.NotNil(t, ana.Birthday)
	assert.Equal(t, "1990-04-12", ana.Birthday.Format("2006-01-02"))

	again, err := f.importer.ImportEmployees(t.Context(), strings.NewReader(file), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped, again.Rows)

	promoted, err := f.importer.ImportEmployees(t.Context(),
		strings.NewReader("email,puesto\nluis@ferre.mx,Encargado"), FormatCSV)
	require.NoError(t, err)
	require.Len(t, promoted.Rows, 1)
	assert.Equal(t, StatusUpdated, promoted.Rows[0].Status)

	var luis models.Employee
	require.NoError(t, f.db.Where("email = ?", "luis@ferre.mx").First(&luis).Error)
	assert.Equal(t, "Encargado", luis.Role)
	assert.Equal(t, "Luis Mora", luis.Name)
	assert.Equal(t, "08:30:00", luis.StartTime.String())
}

func TestEmployeeRowErrors(t *testing.T) {
	f := newFixture(t, Options{})
	file := strings.Join([]string{
		"name,role,email,phone,start_time,birthday",
		"Sin Correo,Ventas,,,09:00,",
		"Sin Horario,Ventas,sin@ferre.mx,,,",
		"Mal Horario,Ventas,mal@ferre.mx,,25:99,",
		"Tel Largo,Ventas,tel@ferre.mx,1234567890123456,09:00,",
	}, "\n")

	report, err := f.importer.ImportEmployees(t.Context(), strings.NewReader(file), FormatCSV)
	require.NoError(t, err)
	require.Len(t, report.Rows, 4)
	assert.Equal(t, 4, report.Failed)
	for _, o := range report.Rows {
		assert.ErrorIs(t, o.Err, ErrInvalidValue, o.Key)
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Employee{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestExportEmployees(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.importer.ImportEmployees(t.Context(), strings.NewReader(
		"name,role,email,phone,start_time,birthday\nAna,Cajera,ana@ferre.mx,55,09:15,1990-04-12"), FormatCSV)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.importer.ExportEmployees(t.Context(), &buf, FormatXLSX))
	rows, err := ReadTable(&buf, FormatXLSX)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, EmployeeHeader, rows[0])
	assert.Equal(t, []string{"Ana", "Cajera", "ana@ferre.mx", "55", "09:15:00", "1990-04-12"}, rows[1])
}
