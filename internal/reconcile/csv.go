package reconcile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNoHeader = errors.New("input has no header row")

// ReadCSV читает файл, где первая запись — заголовок маппинга. Заголовок
// возвращается снова одной CSV-строкой: её разбирает парсер маппинга.
func ReadCSV(r io.Reader, comma rune) (header string, rows [][]string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if comma != 0 {
		cr.Comma = comma
	}
	records, err := cr.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil, ErrNoHeader
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(records[0]); err != nil {
		return "", nil, err
	}
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n"), records[1:], nil
}
