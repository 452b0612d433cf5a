package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"
)

// LoadReport summarizes one metadata batch, mirroring the validation summary
// of the original dataset exploration tooling.
type LoadReport struct {
	Loaded     int      `json:"loaded"`
	Skipped    int      `json:"skipped"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

// LoadCSV reads an arXiv-style metadata export with columns
// id,title,authors,abstract,categories,submit_date,pdf_path. Malformed rows
// are collected in the report and skipped; the batch never aborts on a bad
// record.
func LoadCSV(r io.Reader) ([]models.Paper, LoadReport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("read metadata header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "title", "abstract"} {
		if _, ok := col[required]; !ok {
			return nil, LoadReport{}, fmt.Errorf("metadata header missing %q column: %w", required, util.ErrValidation)
		}
	}

	var (
		papers []models.Paper
		report LoadReport
		seen   = map[string]struct{}{}
		line   = 1
	)
	for {
		line++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		p := models.Paper{
			PaperID:    field(record, col, "id"),
			Title:      field(record, col, "title"),
			Authors:    splitList(field(record, col, "authors")),
			Abstract:   field(record, col, "abstract"),
			Categories: splitList(field(record, col, "categories")),
			SourcePath: field(record, col, "pdf_path"),
			Status:     models.StatusPending,
		}
		if raw := field(record, col, "submit_date"); raw != "" {
			ts, err := parseSubmitDate(raw)
			if err != nil {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			p.SubmitDate = ts
		}
		if err := Validate(p); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if _, dup := seen[p.PaperID]; dup {
			report.Duplicates++
			continue
		}
		seen[p.PaperID] = struct{}{}
		papers = append(papers, p)
		report.Loaded++
	}
	return papers, report, nil
}

func LoadCSVFile(path string) ([]models.Paper, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("open metadata csv: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// splitList handles both semicolon-delimited author lists and
// comma-delimited category sets.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSubmitDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable submit_date %q: %w", raw, util.ErrValidation)
}
