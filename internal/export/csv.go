package export

import (
	"fmt"
	"io"
	"strings"
)

// quoteAllWriter writes CSV records with every field quoted and CRLF line
// endings. encoding/csv only quotes fields that need it.
type quoteAllWriter struct {
	w  io.StringWriter
	sb strings.Builder
}

func newQuoteAllWriter(w io.StringWriter) *quoteAllWriter {
	return &quoteAllWriter{w: w}
}

func (q *quoteAllWriter) Write(fields []string) error {
	q.sb.Reset()
	for i, field := range fields {
		if i > 0 {
			q.sb.WriteByte(',')
		}
		q.sb.WriteByte('"')
		q.sb.WriteString(strings.ReplaceAll(field, `"`, `""`))
		q.sb.WriteByte('"')
	}
	q.sb.WriteString("\r\n")

	if _, err := q.w.WriteString(q.sb.String()); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	return nil
}
