package aircraft

import "strings"

// Aircraft is one machine in the club fleet.
type Aircraft struct {
	Registration  string `json:"registration"`
	CompetitionID string `json:"competition_id,omitempty"`
	Name          string `json:"name,omitempty"`
}

// NormalizeRegistration canonicalizes a registration for lookups.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(strings.TrimSpace(reg))
}
