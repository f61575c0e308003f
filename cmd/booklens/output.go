package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/booklens/backend/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want table, json or yaml)", format)
	}
}

// writeStructured handles the json and yaml formats; ok is false for table
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, err
		}
		_, err = w.Write(data)
		return true, err
	default:
		return false, nil
	}
}

func writeIdentification(w io.Writer, format string, identification *domain.Identification) error {
	if ok, err := writeStructured(w, format, identification); ok {
		return err
	}

	record := identification.Record
	fmt.Fprintf(w, "%s\n", record.Title)
	if record.Author != "" {
		fmt.Fprintf(w, "by %s\n", record.Author)
	}
	if record.ISBN != "" {
		fmt.Fprintf(w, "ISBN %s\n", record.ISBN)
	}
	if record.LinkURL != "" {
		fmt.Fprintf(w, "%s\n", record.LinkURL)
	}
	if identification.VisualScore >= 0 {
		fmt.Fprintf(w, "cover similarity %.2f (%d covers compared)\n", identification.VisualScore, identification.VisualChecked)
	}

	if len(identification.Candidates) > 1 {
		rows := make([][]string, 0, len(identification.Candidates))
		for i, candidate := range identification.Candidates {
			marker := ""
			if candidate.Key() == record.Key() {
				marker = "*"
			}
			rows = append(rows, []string{strconv.Itoa(i + 1), marker, candidate.Title, candidate.Author, candidate.ISBN})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable([]string{"#", "", "Title", "Author", "ISBN"}, rows, []columnAlignment{alignRight}))
	}
	return nil
}

func writeRecommendation(w io.Writer, format string, result *domain.Recommendation) error {
	if ok, err := writeStructured(w, format, result); ok {
		return err
	}

	if len(result.OwnedMatches) > 0 {
		rows := make([][]string, 0, len(result.OwnedMatches))
		for _, book := range result.OwnedMatches {
			rows = append(rows, []string{book.Title, book.Author, book.ID})
		}
		fmt.Fprintln(w, "From your shelf")
		fmt.Fprintln(w, renderTable([]string{"Title", "Author", "ID"}, rows, nil))
	}

	if len(result.NewBooks) > 0 {
		fmt.Fprintln(w, "New books")
		fmt.Fprintln(w, renderTable([]string{"Title", "Author", "ISBN", "Match", "Link"}, recordRows(result.NewBooks, bestEffortKeys(result.Traces)), nil))
	}

	if result.Explanation != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimSpace(result.Explanation))
	}
	if result.Error != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "note: %s\n", result.Error)
	}
	return nil
}

// recordRows marks records that only came back as a closest guess
func recordRows(records []domain.CatalogRecord, bestEffort map[string]bool) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		match := "verified"
		if bestEffort[record.Key()] {
			match = "closest"
		}
		rows = append(rows, []string{record.Title, record.Author, record.ISBN, match, record.LinkURL})
	}
	return rows
}

func bestEffortKeys(traces []domain.GuessTrace) map[string]bool {
	keys := make(map[string]bool)
	for _, trace := range traces {
		if trace.Outcome == domain.OutcomeBestEffort && trace.RecordID != "" {
			keys[trace.RecordID] = true
		}
	}
	// A record matched by another guess is verified
	for _, trace := range traces {
		if trace.Outcome == domain.OutcomeMatched {
			delete(keys, trace.RecordID)
		}
	}
	return keys
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
