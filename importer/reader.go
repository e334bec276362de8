package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/medpricing/medical-data-service/logging"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns the content as UTF-8. Files exported by Windows tools
// are often GB18030, so anything that is not valid UTF-8 is decoded from it.
func decodeText(content []byte) ([]byte, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return content, nil
	}

	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode GB18030 text: %w", err)
	}
	return decoded, nil
}

// column names one field of a source file. Alternative names are tried in order.
type column struct {
	names []string
}

func col(names ...string) column {
	return column{names: names}
}

// table is a parsed CSV file with its header resolved to column positions
type table struct {
	path  string
	index []int // position in the row of each requested column
	rows  [][]string
	width int

	lineCount             int
	skippedMissingColumns int
	skippedFormatErrors   int
}

// readTable reads a CSV file and maps the requested columns by header name
func readTable(path string, columns []column) (*table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	content, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.TrimSpace(name)] = i
	}

	t := &table{path: path, index: make([]int, len(columns)), width: len(header)}
	for i, c := range columns {
		var (
			pos int
			ok  bool
		)
		for _, name := range c.names {
			if pos, ok = positions[name]; ok {
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, c.names[0])
		}
		t.index[i] = pos
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		t.lineCount++

		if len(record) < t.width {
			t.skippedMissingColumns++
			continue
		}

		fields := make([]string, len(t.index))
		for i, pos := range t.index {
			fields[i] = record[pos]
		}
		t.rows = append(t.rows, fields)
	}

	return t, nil
}

// logStats logs skip statistics if any lines were skipped
func (t *table) logStats(parsed int) {
	if t.skippedMissingColumns > 0 || t.skippedFormatErrors > 0 {
		logging.Info("CSV skip statistics",
			"file", t.path,
			"missing_columns", t.skippedMissingColumns,
			"format_errors", t.skippedFormatErrors,
			"total_lines", t.lineCount,
			"records_parsed", parsed)
	}
}
