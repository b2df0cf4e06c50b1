// Package members manages club members and the FloMembers CSV import.
package members

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pik-ry/laskutin/internal/csvutil"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
	domain "github.com/pik-ry/laskutin/internal/domain/member"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Service manages member records and their ledger accounts.
type Service struct {
	members  storage.MemberStore
	accounts storage.AccountStore
	log      *logger.Logger
}

// New constructs a member service.
func New(members storage.MemberStore, accounts storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("members")
	}
	return &Service{members: members, accounts: accounts, log: log}
}

// Create registers a member and makes sure a ledger account exists under the
// same reference.
func (s *Service) Create(ctx context.Context, m domain.Member) (domain.Member, error) {
	m.Reference = strings.TrimSpace(m.Reference)
	if !domain.ValidReference(m.Reference) {
		return domain.Member{}, fmt.Errorf("reference must be a non-empty number")
	}
	if strings.TrimSpace(m.LastName) == "" {
		return domain.Member{}, fmt.Errorf("last name is required")
	}
	m.Active = true

	created, err := s.members.CreateMember(ctx, m)
	if err != nil {
		return domain.Member{}, err
	}
	if _, err := s.ensureAccount(ctx, created.Reference, created.Name()); err != nil {
		return domain.Member{}, fmt.Errorf("ensure account: %w", err)
	}
	s.log.WithField("reference", created.Reference).Info("member created")
	return created, nil
}

// Get returns one member by reference.
func (s *Service) Get(ctx context.Context, reference string) (domain.Member, error) {
	return s.members.GetMember(ctx, reference)
}

// List returns every member.
func (s *Service) List(ctx context.Context) ([]domain.Member, error) {
	return s.members.ListMembers(ctx)
}

// Update changes a member's details. The reference is immutable.
func (s *Service) Update(ctx context.Context, m domain.Member) (domain.Member, error) {
	existing, err := s.members.GetMember(ctx, m.Reference)
	if err != nil {
		return domain.Member{}, err
	}
	if strings.TrimSpace(m.LastName) == "" {
		return domain.Member{}, fmt.Errorf("last name is required")
	}
	existing.FirstName = m.FirstName
	existing.LastName = m.LastName
	existing.Email = m.Email
	existing.BirthDate = m.BirthDate
	existing.Active = m.Active
	return s.members.UpdateMember(ctx, existing)
}

// ImportReport summarizes a member import.
type ImportReport struct {
	Imported        int
	Skipped         int
	AccountsCreated int
}

// ImportCSV reads a FloMembers export. New members are created together with
// their ledger accounts; existing members are skipped untouched but still get
// an account if one is missing. Any malformed row aborts the import with
// nothing written.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return ImportReport{}, fmt.Errorf("read header: %w", err)
	}
	cols := csvutil.Columns(header)
	if err := csvutil.Require(cols, "Sukunimi", "Etunimi", "PIK-viite"); err != nil {
		return ImportReport{}, err
	}

	var (
		report   ImportReport
		creates  []domain.Member
		names    = make(map[string]string)
		planned  = make(map[string]bool)
		rowCount = 1
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ImportReport{}, fmt.Errorf("read row: %w", err)
		}
		rowCount++

		ref := csvutil.Field(record, cols, "PIK-viite")
		if !domain.ValidReference(ref) {
			return ImportReport{}, fmt.Errorf("row %d: invalid reference %q", rowCount, ref)
		}
		first := csvutil.Field(record, cols, "Etunimi")
		last := csvutil.Field(record, cols, "Sukunimi")
		names[ref] = strings.TrimSpace(first + " " + last)

		if planned[ref] {
			report.Skipped++
			continue
		}
		planned[ref] = true

		if _, err := s.members.GetMember(ctx, ref); err == nil {
			report.Skipped++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return ImportReport{}, err
		}

		m := domain.Member{
			Reference: ref,
			FirstName: first,
			LastName:  last,
			Email:     csvutil.Field(record, cols, "Sähköposti"),
			Active:    true,
		}
		if born := csvutil.Field(record, cols, "Syntynyt"); born != "" {
			d, err := parseBirthDate(born)
			if err != nil {
				return ImportReport{}, fmt.Errorf("row %d: %w", rowCount, err)
			}
			m.BirthDate = &d
		}
		creates = append(creates, m)
	}

	for _, m := range creates {
		if _, err := s.members.CreateMember(ctx, m); err != nil {
			return report, fmt.Errorf("create member %s: %w", m.Reference, err)
		}
		report.Imported++
		s.log.WithField("reference", m.Reference).
			WithField("name", m.Name()).
			Debug("member imported")
	}
	for ref, name := range names {
		created, err := s.ensureAccount(ctx, ref, name)
		if err != nil {
			return report, fmt.Errorf("ensure account %s: %w", ref, err)
		}
		if created {
			report.AccountsCreated++
		}
	}

	s.log.Infof("imported %d members (skipped %d existing), created %d accounts",
		report.Imported, report.Skipped, report.AccountsCreated)
	return report, nil
}

// ensureAccount creates the ledger account for a member reference when it
// does not exist yet. Reports whether an account was created.
func (s *Service) ensureAccount(ctx context.Context, reference, name string) (bool, error) {
	_, err := s.accounts.GetAccount(ctx, reference)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	_, err = s.accounts.CreateAccount(ctx, ledger.Account{
		Reference:       reference,
		MemberReference: reference,
		Name:            name,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func parseBirthDate(s string) (time.Time, error) {
	for _, layout := range []string{"2.1.2006", "2006-1-2"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid birth date %q, use DD.MM.YYYY or YYYY-MM-DD", s)
}
