package accounts

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/csvutil"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/storage"
)

// ImportReport summarizes a CSV entry import.
type ImportReport struct {
	Rows     int
	Imported int
	Skipped  int
	Warnings []string
}

var entryColumns = []string{"Tapahtumapäivä", "Maksajan viitenumero", "Selite", "Summa", "Tili"}

// ImportEntriesCSV reads additive ledger entries from a CSV export. Bad rows
// warn and are skipped; only a missing column fails the import.
func (s *Service) ImportEntriesCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return ImportReport{}, fmt.Errorf("read header: %w", err)
	}
	cols := csvutil.Columns(header)
	if err := csvutil.Require(cols, entryColumns...); err != nil {
		return ImportReport{}, err
	}

	var report ImportReport
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, fmt.Errorf("read row: %w", err)
		}
		row++
		report.Rows++

		skip := func(format string, args ...interface{}) {
			msg := fmt.Sprintf("row %d: %s", row, fmt.Sprintf(format, args...))
			report.Warnings = append(report.Warnings, msg)
			report.Skipped++
			s.log.Warn(msg)
		}

		dateStr := csvutil.Field(record, cols, "Tapahtumapäivä")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			skip("invalid date %q, use YYYY-MM-DD", dateStr)
			continue
		}
		ref := csvutil.Field(record, cols, "Maksajan viitenumero")
		if _, err := s.accounts.GetAccount(ctx, ref); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				skip("account %s not found", ref)
				continue
			}
			return report, err
		}
		amountStr := csvutil.Field(record, cols, "Summa")
		amount, err := decimal.NewFromString(strings.ReplaceAll(amountStr, ",", "."))
		if err != nil {
			skip("invalid amount %q", amountStr)
			continue
		}

		if _, err := s.entries.CreateEntry(ctx, ledger.Entry{
			AccountReference: ref,
			Date:             date,
			Amount:           ledger.Quantize(amount),
			Description:      csvutil.Field(record, cols, "Selite"),
			Additive:         true,
			LedgerAccount:    csvutil.Field(record, cols, "Tili"),
			Visible:          true,
		}); err != nil {
			return report, fmt.Errorf("save entry: %w", err)
		}
		report.Imported++
	}

	s.log.Infof("entry import completed: %d imported, %d skipped", report.Imported, report.Skipped)
	return report, nil
}

// ImportBalancesCSV reads headerless balance reset rows in the form
// date,reference,description,balance and writes them as non-additive
// entries. A malformed row aborts the import before anything is written;
// unknown accounts, empty fields and unparseable balances warn and are
// skipped. Amounts use a dot decimal separator.
func (s *Service) ImportBalancesCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		report  ImportReport
		pending []ledger.Entry
	)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, fmt.Errorf("read row: %w", err)
		}
		row++
		if allEmpty(record) {
			continue
		}
		report.Rows++

		skip := func(format string, args ...interface{}) {
			msg := fmt.Sprintf("row %d: %s", row, fmt.Sprintf(format, args...))
			report.Warnings = append(report.Warnings, msg)
			report.Skipped++
			s.log.Warn(msg)
		}

		if len(record) != 4 {
			return report, fmt.Errorf("row %d: expected 4 columns, got %d", row, len(record))
		}
		if anyEmpty(record) {
			skip("empty required field")
			continue
		}

		dateStr := strings.TrimSpace(record[0])
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return report, fmt.Errorf("row %d: invalid date %q, use YYYY-MM-DD", row, dateStr)
		}
		ref := strings.TrimSpace(record[1])
		if _, err := s.accounts.GetAccount(ctx, ref); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				skip("account %s not found", ref)
				continue
			}
			return report, err
		}
		amountStr := strings.TrimSpace(record[3])
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			skip("invalid balance %q", amountStr)
			continue
		}

		pending = append(pending, ledger.Entry{
			AccountReference: ref,
			Date:             date,
			Amount:           ledger.Quantize(amount),
			Description:      strings.TrimSpace(record[2]),
			Additive:         false,
			Visible:          true,
		})
	}

	for _, e := range pending {
		if _, err := s.entries.CreateEntry(ctx, e); err != nil {
			return report, fmt.Errorf("save entry: %w", err)
		}
		report.Imported++
	}

	s.log.Infof("balance import completed: %d imported, %d skipped", report.Imported, report.Skipped)
	return report, nil
}

func allEmpty(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func anyEmpty(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}
