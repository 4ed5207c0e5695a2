package importer

import (
	"encoding/json"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the result of one data row. Err is set only for failed rows;
// Warnings carry relation problems that did not fail the row.
type Outcome struct {
	Line     int
	Key      string
	Status   Status
	Err      error
	Warnings []error
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Line     int      `json:"line"`
		Key      string   `json:"key"`
		Status   Status   `json:"status"`
		Error    string   `json:"error,omitempty"`
		Warnings []string `json:"warnings,omitempty"`
	}{Line: o.Line, Key: o.Key, Status: o.Status}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	for _, w := range o.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return json.Marshal(out)
}

// Report collects the outcome of every row of one import.
type Report struct {
	Rows    []Outcome `json:"rows"`
	Created int       `json:"created"`
	Updated int       `json:"updated"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
}

// Writes is the number of rows that changed the database.
func (r *Report) Writes() int {
	return r.Created + r.Updated
}

func (r *Report) tally() {
	r.Created, r.Updated, r.Skipped, r.Failed = 0, 0, 0, 0
	for _, o := range r.Rows {
		switch o.Status {
		case StatusCreated:
			r.Created++
		case StatusUpdated:
			r.Updated++
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		}
	}
}
