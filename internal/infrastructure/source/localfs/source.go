// Package localfs loads invoice batches from files on local disk.
package localfs

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

const (
	columnID      = "id"
	columnContent = "content"
)

// Source reads tabular files with id and content columns (CSV, XLSX) and
// single documents (PDF, plain text).
type Source struct {
	// Start and End select rows [Start, End). End <= 0 means through the
	// last row.
	Start int
	End   int
}

func New(start, end int) *Source {
	return &Source{Start: start, End: end}
}

func (s *Source) Load(ctx context.Context, path string) ([]domain.InvoiceInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		inputs []domain.InvoiceInput
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		inputs, err = loadCSV(path)
	case ".xlsx":
		inputs, err = loadXLSX(path)
	case ".pdf":
		inputs, err = loadPDF(path)
	case ".txt", ".eml", ".json", "":
		inputs, err = loadText(path)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "load invoices", fmt.Errorf("unsupported file type %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, err
	}
	return Slice(inputs, s.Start, s.End), nil
}

// Slice returns inputs[start:end] clamped to the available rows.
func Slice(inputs []domain.InvoiceInput, start, end int) []domain.InvoiceInput {
	n := len(inputs)
	if end <= 0 || end > n {
		end = n
	}
	start = max(start, 0)
	if start >= end {
		return []domain.InvoiceInput{}
	}
	return inputs[start:end]
}

func loadCSV(path string) ([]domain.InvoiceInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read csv", err)
		}
		rows = append(rows, record)
	}
	return fromRows(rows)
}

func loadXLSX(path string) ([]domain.InvoiceInput, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read xlsx", errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read xlsx", err)
	}
	return fromRows(rows)
}

// fromRows maps a header row plus data rows to inputs. Rows with a blank
// id are skipped; a duplicate id or an id with blank content fails the load.
func fromRows(rows [][]string) ([]domain.InvoiceInput, error) {
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read rows", errors.New("file is empty"))
	}

	idCol, contentCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case columnID:
			idCol = i
		case columnContent:
			contentCol = i
		}
	}
	if idCol < 0 || contentCol < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read rows", errors.New("file must contain 'id' and 'content' columns"))
	}

	inputs := make([]domain.InvoiceInput, 0, len(rows)-1)
	seen := make(map[int]int, len(rows)-1)
	for line, row := range rows[1:] {
		rawID := cell(row, idCol)
		if rawID == "" {
			continue
		}
		id, err := strconv.Atoi(rawID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read rows", fmt.Errorf("row %d: invalid id %q", line+2, rawID))
		}
		if first, ok := seen[id]; ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read rows", fmt.Errorf("row %d: duplicate id %d, first seen on row %d", line+2, id, first))
		}
		seen[id] = line + 2
		content := cell(row, contentCol)
		if content == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read rows", fmt.Errorf("row %d: invoice %d has empty content", line+2, id))
		}
		inputs = append(inputs, domain.InvoiceInput{ID: id, Content: content})
	}
	return inputs, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func loadPDF(path string) ([]domain.InvoiceInput, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read pdf", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}
	return singleDocument(path, string(raw))
}

func loadText(path string) ([]domain.InvoiceInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read text", fmt.Errorf("%s is not valid UTF-8", filepath.Base(path)))
	}
	return singleDocument(path, string(raw))
}

func singleDocument(path, text string) ([]domain.InvoiceInput, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", fmt.Errorf("%s has no text", filepath.Base(path)))
	}
	return []domain.InvoiceInput{{ID: 1, Content: text}}, nil
}
