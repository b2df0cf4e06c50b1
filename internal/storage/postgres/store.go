package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/aircraft"
	"github.com/pik-ry/laskutin/internal/domain/flight"
	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	"github.com/pik-ry/laskutin/internal/domain/member"
	"github.com/pik-ry/laskutin/internal/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.MemberStore = (*Store)(nil)
var _ storage.AccountStore = (*Store)(nil)
var _ storage.EntryStore = (*Store)(nil)
var _ storage.AircraftStore = (*Store)(nil)
var _ storage.FlightStore = (*Store)(nil)
var _ storage.InvoiceStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- MemberStore ------------------------------------------------------------

func (s *Store) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (reference, first_name, last_name, email, birth_date, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.Reference, m.FirstName, m.LastName, m.Email, toNullTimePtr(m.BirthDate), m.Active, m.CreatedAt)
	if err != nil {
		return member.Member{}, wrapConflict(err, "member", m.Reference)
	}
	return m, nil
}

func (s *Store) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	existing, err := s.GetMember(ctx, m.Reference)
	if err != nil {
		return member.Member{}, err
	}
	m.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET first_name = $2, last_name = $3, email = $4, birth_date = $5, active = $6
		WHERE reference = $1
	`, m.Reference, m.FirstName, m.LastName, m.Email, toNullTimePtr(m.BirthDate), m.Active)
	if err != nil {
		return member.Member{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return member.Member{}, notFound("member", m.Reference)
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, reference string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT reference, first_name, last_name, email, birth_date, active, created_at
		FROM members
		WHERE reference = $1
	`, reference)

	var (
		m     member.Member
		birth sql.NullTime
	)
	if err := row.Scan(&m.Reference, &m.FirstName, &m.LastName, &m.Email, &birth, &m.Active, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return member.Member{}, notFound("member", reference)
		}
		return member.Member{}, err
	}
	m.BirthDate = timePtr(birth)
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]member.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reference, first_name, last_name, email, birth_date, active, created_at
		FROM members
		ORDER BY reference
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []member.Member
	for rows.Next() {
		var (
			m     member.Member
			birth sql.NullTime
		)
		if err := rows.Scan(&m.Reference, &m.FirstName, &m.LastName, &m.Email, &birth, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.BirthDate = timePtr(birth)
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) DeleteMember(ctx context.Context, reference string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM members WHERE reference = $1
	`, reference)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound("member", reference)
	}
	return nil
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error) {
	acct.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (reference, member_reference, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, acct.Reference, acct.MemberReference, acct.Name, acct.CreatedAt)
	if err != nil {
		return ledger.Account{}, wrapConflict(err, "account", acct.Reference)
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error) {
	existing, err := s.GetAccount(ctx, acct.Reference)
	if err != nil {
		return ledger.Account{}, err
	}
	acct.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET member_reference = $2, name = $3
		WHERE reference = $1
	`, acct.Reference, acct.MemberReference, acct.Name)
	if err != nil {
		return ledger.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Account{}, notFound("account", acct.Reference)
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, reference string) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT reference, member_reference, name, created_at
		FROM accounts
		WHERE reference = $1
	`, reference)

	var acct ledger.Account
	if err := row.Scan(&acct.Reference, &acct.MemberReference, &acct.Name, &acct.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, notFound("account", reference)
		}
		return ledger.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reference, member_reference, name, created_at
		FROM accounts
		ORDER BY reference
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Account
	for rows.Next() {
		var acct ledger.Account
		if err := rows.Scan(&acct.Reference, &acct.MemberReference, &acct.Name, &acct.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

func (s *Store) DeleteAccount(ctx context.Context, reference string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM accounts WHERE reference = $1
	`, reference)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound("account", reference)
	}
	return nil
}

// --- EntryStore -------------------------------------------------------------

const entryColumns = `id, account_reference, entry_date, amount, description, additive, ledger_account, flight_id, tags, visible, created_at`

func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.AccountReference, e.Date, e.Amount, e.Description, e.Additive, e.LedgerAccount, e.FlightID, pq.Array(e.Tags), e.Visible, e.CreatedAt)
	if err != nil {
		return ledger.Entry{}, wrapConflict(err, "entry", e.ID)
	}
	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	existing, err := s.GetEntry(ctx, e.ID)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE account_entries
		SET account_reference = $2, entry_date = $3, amount = $4, description = $5,
		    additive = $6, ledger_account = $7, flight_id = $8, tags = $9, visible = $10
		WHERE id = $1
	`, e.ID, e.AccountReference, e.Date, e.Amount, e.Description, e.Additive, e.LedgerAccount, e.FlightID, pq.Array(e.Tags), e.Visible)
	if err != nil {
		return ledger.Entry{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Entry{}, notFound("entry", e.ID)
	}
	return e, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM account_entries
		WHERE id = $1
	`, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, notFound("entry", id)
		}
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, accountReference string) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM account_entries
		ORDER BY entry_date, created_at, id
	`
	args := []interface{}{}
	if accountReference != "" {
		query = `
			SELECT ` + entryColumns + `
			FROM account_entries
			WHERE account_reference = $1
			ORDER BY entry_date, created_at, id
		`
		args = append(args, accountReference)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM account_entries WHERE id = $1
	`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("entry %s attached to an invoice: %w", id, storage.ErrConflict)
		}
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound("entry", id)
	}
	return nil
}

func (s *Store) GetEntryByTag(ctx context.Context, tag string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM account_entries
		WHERE $1 = ANY(tags)
		ORDER BY created_at, id
		LIMIT 1
	`, tag)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, notFound("entry tagged", tag)
		}
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) SumEntriesByTag(ctx context.Context, accountReference, tag string, year int) (decimal.Decimal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM account_entries
		WHERE account_reference = $1
		  AND $2 = ANY(tags)
		  AND entry_date >= $3 AND entry_date < $4
	`, accountReference, tag, yearStart(year), yearStart(year+1))

	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (s *Store) ListEntriesByFlight(ctx context.Context, flightID string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM account_entries
		WHERE flight_id = $1
		ORDER BY entry_date, created_at, id
	`, flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// --- AircraftStore ----------------------------------------------------------

func (s *Store) CreateAircraft(ctx context.Context, a aircraft.Aircraft) (aircraft.Aircraft, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aircraft (registration, competition_id, name)
		VALUES ($1, $2, $3)
	`, a.Registration, a.CompetitionID, a.Name)
	if err != nil {
		return aircraft.Aircraft{}, wrapConflict(err, "aircraft", a.Registration)
	}
	return a, nil
}

func (s *Store) UpdateAircraft(ctx context.Context, a aircraft.Aircraft) (aircraft.Aircraft, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE aircraft
		SET competition_id = $2, name = $3
		WHERE registration = $1
	`, a.Registration, a.CompetitionID, a.Name)
	if err != nil {
		return aircraft.Aircraft{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return aircraft.Aircraft{}, notFound("aircraft", a.Registration)
	}
	return a, nil
}

func (s *Store) GetAircraft(ctx context.Context, registration string) (aircraft.Aircraft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT registration, competition_id, name
		FROM aircraft
		WHERE registration = $1
	`, registration)

	var a aircraft.Aircraft
	if err := row.Scan(&a.Registration, &a.CompetitionID, &a.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return aircraft.Aircraft{}, notFound("aircraft", registration)
		}
		return aircraft.Aircraft{}, err
	}
	return a, nil
}

func (s *Store) ListAircraft(ctx context.Context) ([]aircraft.Aircraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT registration, competition_id, name
		FROM aircraft
		ORDER BY registration
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []aircraft.Aircraft
	for rows.Next() {
		var a aircraft.Aircraft
		if err := rows.Scan(&a.Registration, &a.CompetitionID, &a.Name); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) DeleteAircraft(ctx context.Context, registration string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM aircraft WHERE registration = $1
	`, registration)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound("aircraft", registration)
	}
	return nil
}

// --- FlightStore ------------------------------------------------------------

const flightColumns = `id, flight_date, reference_id, account_reference, aircraft, takeoff_time, landing_time,
	takeoff_location, landing_location, landing_count, duration, purpose, captain, passengers, notes,
	surcharge_reason, discount_reason, refund_entry_id, created_at`

func (s *Store) CreateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flights (`+flightColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, f.ID, f.Date, f.ReferenceID, f.AccountReference, f.Aircraft, toNullTime(f.TakeoffTime), toNullTime(f.LandingTime),
		f.TakeoffLocation, f.LandingLocation, f.LandingCount, f.Duration, f.Purpose, f.Captain, f.Passengers, f.Notes,
		f.SurchargeReason, f.DiscountReason, f.RefundEntryID, f.CreatedAt)
	if err != nil {
		return flight.Flight{}, wrapConflict(err, "flight", f.ID)
	}
	return f, nil
}

func (s *Store) UpdateFlight(ctx context.Context, f flight.Flight) (flight.Flight, error) {
	existing, err := s.GetFlight(ctx, f.ID)
	if err != nil {
		return flight.Flight{}, err
	}
	f.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE flights
		SET flight_date = $2, reference_id = $3, account_reference = $4, aircraft = $5,
		    takeoff_time = $6, landing_time = $7, takeoff_location = $8, landing_location = $9,
		    landing_count = $10, duration = $11, purpose = $12, captain = $13, passengers = $14,
		    notes = $15, surcharge_reason = $16, discount_reason = $17, refund_entry_id = $18
		WHERE id = $1
	`, f.ID, f.Date, f.ReferenceID, f.AccountReference, f.Aircraft,
		toNullTime(f.TakeoffTime), toNullTime(f.LandingTime), f.TakeoffLocation, f.LandingLocation,
		f.LandingCount, f.Duration, f.Purpose, f.Captain, f.Passengers,
		f.Notes, f.SurchargeReason, f.DiscountReason, f.RefundEntryID)
	if err != nil {
		return flight.Flight{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flight.Flight{}, notFound("flight", f.ID)
	}
	return f, nil
}

func (s *Store) GetFlight(ctx context.Context, id string) (flight.Flight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+flightColumns+`
		FROM flights
		WHERE id = $1
	`, id)

	f, err := scanFlight(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return flight.Flight{}, notFound("flight", id)
		}
		return flight.Flight{}, err
	}
	return f, nil
}

func (s *Store) ListFlights(ctx context.Context, accountReference string) ([]flight.Flight, error) {
	query := `
		SELECT ` + flightColumns + `
		FROM flights
		ORDER BY flight_date, takeoff_time, id
	`
	args := []interface{}{}
	if accountReference != "" {
		query = `
			SELECT ` + flightColumns + `
			FROM flights
			WHERE account_reference = $1
			ORDER BY flight_date, takeoff_time, id
		`
		args = append(args, accountReference)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlights(rows)
}

func (s *Store) ListFlightsByPeriod(ctx context.Context, start, end time.Time) ([]flight.Flight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+flightColumns+`
		FROM flights
		WHERE flight_date >= $1 AND flight_date <= $2
		ORDER BY flight_date, takeoff_time, id
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlights(rows)
}

func (s *Store) ListFlightsByAircraftDate(ctx context.Context, registration string, date time.Time) ([]flight.Flight, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+flightColumns+`
		FROM flights
		WHERE aircraft = $1 AND flight_date >= $2 AND flight_date < $3
		ORDER BY flight_date, takeoff_time, id
	`, registration, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlights(rows)
}

func (s *Store) ListUnbilledFlights(ctx context.Context, start, end time.Time) ([]flight.Flight, error) {
	query := `
		SELECT ` + flightColumns + `
		FROM flights f
		WHERE NOT EXISTS (SELECT 1 FROM account_entries e WHERE e.flight_id = f.id)`
	args := []interface{}{}
	if !start.IsZero() {
		args = append(args, start)
		query += fmt.Sprintf(" AND f.flight_date >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		query += fmt.Sprintf(" AND f.flight_date <= $%d", len(args))
	}
	query += " ORDER BY f.account_reference, f.flight_date, f.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlights(rows)
}

func (s *Store) DeleteFlight(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM flights WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound("flight", id)
	}
	return nil
}

// --- InvoiceStore -----------------------------------------------------------

func (s *Store) CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, number, account_reference, status, created_at, due_date, sent_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.Number, inv.AccountReference, inv.Status, inv.CreatedAt, toNullTimePtr(inv.DueDate), toNullTimePtr(inv.SentAt), inv.Notes)
	if err != nil {
		return invoice.Invoice{}, wrapConflict(err, "invoice", inv.Number)
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	existing, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	inv.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET number = $2, account_reference = $3, status = $4, due_date = $5, sent_at = $6, notes = $7
		WHERE id = $1
	`, inv.ID, inv.Number, inv.AccountReference, inv.Status, toNullTimePtr(inv.DueDate), toNullTimePtr(inv.SentAt), inv.Notes)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return invoice.Invoice{}, notFound("invoice", inv.ID)
	}
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, account_reference, status, created_at, due_date, sent_at, notes
		FROM invoices
		WHERE id = $1
	`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invoice.Invoice{}, notFound("invoice", id)
		}
		return invoice.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, accountReference string, status invoice.Status) ([]invoice.Invoice, error) {
	query := `
		SELECT id, number, account_reference, status, created_at, due_date, sent_at, notes
		FROM invoices
	`
	var (
		where []string
		args  []interface{}
	)
	if accountReference != "" {
		args = append(args, accountReference)
		where = append(where, "account_reference = $1")
	}
	if status != "" {
		args = append(args, string(status))
		if len(args) == 2 {
			where = append(where, "status = $2")
		} else {
			where = append(where, "status = $1")
		}
	}
	if len(where) > 0 {
		query += " WHERE " + where[0]
		if len(where) == 2 {
			query += " AND " + where[1]
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) (int, error) {
	detachRes, err := s.db.ExecContext(ctx, `
		DELETE FROM invoice_entries WHERE invoice_id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	detached, _ := detachRes.RowsAffected()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM invoices WHERE id = $1
	`, id)
	if err != nil {
		return 0, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return 0, notFound("invoice", id)
	}
	return int(detached), nil
}

func (s *Store) AttachEntries(ctx context.Context, invoiceID string, entryIDs []string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM invoices WHERE id = $1
	`, invoiceID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("invoice", invoiceID)
		}
		return err
	}
	if invoice.Status(status) == invoice.StatusCancelled {
		return fmt.Errorf("invoice %s is cancelled: %w", invoiceID, storage.ErrConflict)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoice_entries (invoice_id, entry_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`, invoiceID, pq.Array(entryIDs))
	if err != nil {
		if isForeignKeyViolation(err) {
			return notFound("entry", "for invoice "+invoiceID)
		}
		return err
	}
	return nil
}

func (s *Store) ListInvoiceEntries(ctx context.Context, invoiceID string) ([]ledger.Entry, error) {
	if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.account_reference, e.entry_date, e.amount, e.description, e.additive,
		       e.ledger_account, e.flight_id, e.tags, e.visible, e.created_at
		FROM account_entries e
		JOIN invoice_entries ie ON ie.entry_id = e.id
		WHERE ie.invoice_id = $1
		ORDER BY e.entry_date, e.created_at, e.id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) ListEntryInvoices(ctx context.Context, entryID string) ([]invoice.Invoice, error) {
	if _, err := s.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.number, i.account_reference, i.status, i.created_at, i.due_date, i.sent_at, i.notes
		FROM invoices i
		JOIN invoice_entries ie ON ie.invoice_id = i.id
		WHERE ie.entry_id = $1
		ORDER BY i.created_at, i.id
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// --- Helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.AccountReference, &e.Date, &e.Amount, &e.Description, &e.Additive,
		&e.LedgerAccount, &e.FlightID, pq.Array(&e.Tags), &e.Visible, &e.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	var result []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanFlight(row rowScanner) (flight.Flight, error) {
	var (
		f       flight.Flight
		takeoff sql.NullTime
		landing sql.NullTime
	)
	err := row.Scan(&f.ID, &f.Date, &f.ReferenceID, &f.AccountReference, &f.Aircraft, &takeoff, &landing,
		&f.TakeoffLocation, &f.LandingLocation, &f.LandingCount, &f.Duration, &f.Purpose, &f.Captain, &f.Passengers, &f.Notes,
		&f.SurchargeReason, &f.DiscountReason, &f.RefundEntryID, &f.CreatedAt)
	if err != nil {
		return flight.Flight{}, err
	}
	if takeoff.Valid {
		f.TakeoffTime = takeoff.Time
	}
	if landing.Valid {
		f.LandingTime = landing.Time
	}
	return f, nil
}

func collectFlights(rows *sql.Rows) ([]flight.Flight, error) {
	var result []flight.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanInvoice(row rowScanner) (invoice.Invoice, error) {
	var (
		inv    invoice.Invoice
		status string
		due    sql.NullTime
		sent   sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.AccountReference, &status, &inv.CreatedAt, &due, &sent, &inv.Notes)
	if err != nil {
		return invoice.Invoice{}, err
	}
	inv.Status = invoice.Status(status)
	inv.DueDate = timePtr(due)
	inv.SentAt = timePtr(sent)
	return inv, nil
}

func notFound(entity, key string) error {
	return fmt.Errorf("%s %s: %w", entity, key, storage.ErrNotFound)
}

func wrapConflict(err error, entity, key string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w", entity, key, storage.ErrConflict)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toNullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
