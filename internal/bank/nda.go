// Package bank reads Finnish TITO bank statement files, commonly named
// with an .nda extension, and exposes the transactions they contain.
package bank

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/pkg/logger"
)

// Record codes in column 1-2 of each line. The leading byte is the
// material marker T.
const (
	recordHeader      = "00"
	recordTransaction = "10"
	recordExtra       = "11"
)

// Subtypes of the additional information record.
const (
	extraMessage   = "00"
	extraReference = "06"
	extraDetails   = "11"
)

// headerAccountOffset is the width of the fixed fields that precede the
// IBAN and BIC at the end of a header record.
const headerAccountOffset = 292

// ndaCharset maps the national use positions of the legacy bank charset
// back to scandinavian letters.
var ndaCharset = strings.NewReplacer(
	"[", "Ä",
	"\\", "Ö",
	"]", "Å",
	"{", "ä",
	"|", "ö",
)

// Transaction is a single statement line together with the receipt lines
// folded under it. Dates with the unset marker 000000 are zero.
type Transaction struct {
	IBAN          string
	BIC           string
	Date          time.Time
	LedgerDate    time.Time
	PaymentDate   time.Time
	ValueDate     time.Time
	Name          string
	Cents         int64
	Operation     string
	Reference     string
	Message       string
	OurReference  string
	RecipientIBAN string
	RecipientBIC  string
	ReceiptFlag   string
	IsReceipt     bool
	Receipts      []Transaction

	// Raw is the original statement line, kept for fingerprinting.
	Raw string
}

// Amount returns the transaction amount in euros.
func (t Transaction) Amount() decimal.Decimal {
	return decimal.New(t.Cents, -2)
}

// Fingerprint returns a short stable identifier derived from the raw
// statement line. Imports tag entries with it to stay idempotent.
func (t Transaction) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.Raw))
	return hex.EncodeToString(sum[:])[:12]
}

type header struct {
	iban string
	bic  string
}

type extraRecord struct {
	subtype       string
	message       string
	ourReference  string
	recipientIBAN string
	recipientBIC  string
}

// Parser parses TITO statement material.
type Parser struct {
	log *logger.Logger
}

// NewParser creates a statement parser. A nil logger falls back to a
// default logger.
func NewParser(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.NewDefault("bank")
	}
	return &Parser{log: log}
}

// Parse reads statement lines from r and returns the transactions in
// file order. Receipt lines that follow a batch marker are attached to
// the batch transaction instead of appearing on their own.
func (p *Parser) Parse(r io.Reader) ([]Transaction, error) {
	var (
		txns    []Transaction
		head    *header
		current *Transaction
		extras  []extraRecord
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNo++

		switch field(line, 1, 3) {
		case recordHeader:
			h, err := parseHeader(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			head = &h
		case recordTransaction:
			if head == nil {
				return nil, fmt.Errorf("line %d: transaction record before header", lineNo)
			}
			if current != nil {
				txns = append(txns, finishTransaction(*head, *current, extras))
			}
			t, err := parseTransaction(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = &t
			extras = nil
		case recordExtra:
			extras = append(extras, parseExtra(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		txns = append(txns, finishTransaction(*head, *current, extras))
	}

	return p.foldReceipts(txns), nil
}

func parseHeader(line string) (header, error) {
	parts := strings.Fields(field(line, headerAccountOffset, len(line)))
	if len(parts) < 2 {
		return header{}, errors.New("header record missing account details")
	}
	return header{iban: parts[0], bic: parts[1]}, nil
}

func parseTransaction(line string) (Transaction, error) {
	ledgerDate, err := parseDate(field(line, 30, 36))
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger date: %w", err)
	}
	paymentDate, err := parseDate(field(line, 36, 42))
	if err != nil {
		return Transaction{}, fmt.Errorf("payment date: %w", err)
	}
	valueDate, err := parseDate(field(line, 42, 48))
	if err != nil {
		return Transaction{}, fmt.Errorf("value date: %w", err)
	}
	cents, err := parseCents(field(line, 87, 88), field(line, 88, 106))
	if err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}

	return Transaction{
		Date:        ledgerDate,
		LedgerDate:  ledgerDate,
		PaymentDate: paymentDate,
		ValueDate:   valueDate,
		Name:        strings.TrimRight(ndaCharset.Replace(field(line, 108, 143)), " "),
		Cents:       cents,
		Operation:   strings.TrimRight(ndaCharset.Replace(field(line, 52, 87)), " "),
		Reference:   strings.TrimSpace(strings.TrimLeft(field(line, 159, 179), "0")),
		ReceiptFlag: strings.TrimSpace(field(line, 106, 107)),
		IsReceipt:   strings.TrimSpace(field(line, 187, 188)) != "",
		Raw:         line,
	}, nil
}

func parseExtra(line string) extraRecord {
	e := extraRecord{subtype: field(line, 6, 8)}
	switch e.subtype {
	case extraMessage:
		e.message = ndaCharset.Replace(strings.TrimRight(field(line, 8, len(line)), " "))
	case extraReference:
		// The reference already arrives on the transaction record.
	case extraDetails:
		e.ourReference = ndaCharset.Replace(strings.TrimRight(field(line, 8, 43), " "))
		e.recipientIBAN = ndaCharset.Replace(strings.TrimRight(field(line, 43, 78), " "))
		e.recipientBIC = ndaCharset.Replace(strings.TrimRight(field(line, 78, 113), " "))
	}
	return e
}

// finishTransaction attaches the statement account and the first
// matching additional records to a parsed transaction.
func finishTransaction(h header, t Transaction, extras []extraRecord) Transaction {
	t.IBAN = h.iban
	t.BIC = h.bic

	var haveMessage, haveDetails bool
	for _, e := range extras {
		switch {
		case e.subtype == extraMessage && !haveMessage:
			t.Message = e.message
			haveMessage = true
		case e.subtype == extraDetails && !haveDetails:
			t.OurReference = e.ourReference
			t.RecipientIBAN = e.recipientIBAN
			t.RecipientBIC = e.recipientBIC
			haveDetails = true
		}
	}
	return t
}

// foldReceipts nests receipt lines under the preceding batch line. A
// receipt flag E opens a batch and any plain line closes it.
func (p *Parser) foldReceipts(txns []Transaction) []Transaction {
	result := make([]Transaction, 0, len(txns))
	mainIdx := -1

	for _, t := range txns {
		switch {
		case t.ReceiptFlag == "" && !t.IsReceipt:
			result = append(result, t)
			mainIdx = -1
		case t.ReceiptFlag == "E":
			result = append(result, t)
			mainIdx = len(result) - 1
		case mainIdx >= 0 && t.IsReceipt:
			result[mainIdx].Receipts = append(result[mainIdx].Receipts, t)
		default:
			p.log.WithFields(map[string]interface{}{
				"operation": t.Operation,
				"reference": t.Reference,
			}).Warn("unexpected receipt line outside a batch")
			result = append(result, t)
		}
	}
	return result
}

func parseDate(s string) (time.Time, error) {
	if s == "000000" {
		return time.Time{}, nil
	}
	return time.Parse("060102", s)
}

func parseCents(sign, digits string) (int64, error) {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(sign) == "-" {
		n = -n
	}
	return n, nil
}

// field returns the given column range of a line. Short lines read as
// empty fields so trailing padding may be omitted.
func field(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return line[from:to]
}
