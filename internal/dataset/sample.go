package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultSampleRows is the chunk size used to cut a dataset for the agents.
const DefaultSampleRows = 50

// ErrEmptyDataset is returned for CSV input without a header row.
var ErrEmptyDataset = errors.New("dataset has no header row")

// Sample reads a CSV document and renders its first chunk as a fixed-width
// table for the agents. The rows are split into len/rows+1 near-equal chunks,
// the first of which is kept, so small files are shown whole.
func Sample(r io.Reader, name string, rows int) (string, error) {
	if rows <= 0 {
		rows = DefaultSampleRows
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return "", ErrEmptyDataset
	}
	if err != nil {
		return "", fmt.Errorf("read csv header: %w", err)
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}

	n := len(records)
	chunks := n/rows + 1
	first := n / chunks
	if n%chunks > 0 {
		first++
	}
	return render(name, header, records[:first], n), nil
}

func render(name string, header []string, records [][]string, total int) string {
	idxWidth := len(strconv.Itoa(max(len(records)-1, 0)))
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, rec := range records {
		for i := range header {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell(rec, i)))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "df_name: %s\n", name)
	fmt.Fprintf(&b, "columns: %s\n", strings.Join(header, ", "))
	fmt.Fprintf(&b, "rows: %d of %d\n\n", len(records), total)

	b.WriteString(strings.Repeat(" ", idxWidth))
	for i, h := range header {
		b.WriteString("  ")
		b.WriteString(padLeft(h, widths[i]))
	}
	for r, rec := range records {
		b.WriteString("\n")
		b.WriteString(padLeft(strconv.Itoa(r), idxWidth))
		for i := range header {
			b.WriteString("  ")
			b.WriteString(padLeft(cell(rec, i), widths[i]))
		}
	}
	return b.String()
}

// cell returns column i of rec, with missing values shown as NaN.
func cell(rec []string, i int) string {
	if i < len(rec) && rec[i] != "" {
		return rec[i]
	}
	return "NaN"
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
