package invoicing

import (
	"github.com/shopspring/decimal"

	"github.com/pik-ry/laskutin/internal/domain/invoice"
	"github.com/pik-ry/laskutin/internal/domain/ledger"
)

// letterDateLayout prints dates the Finnish way, zero padded.
const letterDateLayout = "02.01.2006"

// DefaultTemplate is the built-in invoice letter body. Installations may
// swap it for their own template text through the invoicing options.
const DefaultTemplate = `PIK ry jäsenlaskutus, viite {{.Reference}}

---------------------------
Laskun päivämäärä: {{.Date}}

Saaja: {{.ClubName}}
Saajan tilinumero: {{.IBAN}}{{if .BIC}} (BIC {{.BIC}}){{end}}

Viitenumero: {{.Reference}} (PIK-viite)
Eräpäivä: {{.DueDate}}

Lentotilin saldo: {{.Balance}} EUR
{{if .Payable}}Maksettavaa: {{.Total}} EUR{{else}}Ei maksettavaa kerholle.{{end}}
---------------------------

Hei{{if .FirstName}} {{.FirstName}}{{end}}!

Tässä Polyteknikkojen Ilmailukerhon lentolaskusi vuodelle {{.Year}}.

Terveisin
{{.ClubName}}

Tapahtumien erittely:
------------------------------------------------------------
{{range .Lines}}{{.Date}} {{printf "%8s" .Amount}} EUR - {{.Description}}
{{end}}------------------------------------------------------------

Yhteensä: {{.Total}} EUR
`

// DefaultSubject is the built-in mail subject line. Its Date renders as
// month/year, matching the monthly batch the letter belongs to.
const DefaultSubject = `PIK Lentolasku {{.Date}} viite {{.Reference}}`

// Letter is the data a letter template renders from. Dates and amounts are
// pre-formatted strings so the template text stays plain.
type Letter struct {
	Reference string
	Date      string
	ClubName  string
	IBAN      string
	BIC       string
	DueDate   string
	Balance   string
	Payable   bool
	Total     string
	FirstName string
	Year      int
	Lines     []LetterLine
}

// LetterLine is one entry row on the letter.
type LetterLine struct {
	Date        string
	Amount      string
	Description string
}

func (s *Service) letterData(inv invoice.Invoice, balance decimal.Decimal, entries []ledger.Entry, firstName string) Letter {
	total := decimal.Zero
	lines := make([]LetterLine, 0, len(entries))
	for _, e := range entries {
		total = total.Add(e.Amount)
		lines = append(lines, LetterLine{
			Date:        e.Date.Format(letterDateLayout),
			Amount:      e.Amount.StringFixed(2),
			Description: e.Description,
		})
	}
	var due string
	if inv.DueDate != nil {
		due = inv.DueDate.Format(letterDateLayout)
	}
	return Letter{
		Reference: inv.AccountReference,
		Date:      inv.CreatedAt.Format(letterDateLayout),
		ClubName:  s.opts.ClubName,
		IBAN:      s.opts.IBAN,
		BIC:       s.opts.BIC,
		DueDate:   due,
		Balance:   balance.StringFixed(2),
		Payable:   balance.IsPositive(),
		Total:     ledger.Quantize(total).StringFixed(2),
		FirstName: firstName,
		Year:      inv.CreatedAt.Year(),
		Lines:     lines,
	}
}
