package companies

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"companies.ai/internal/sim/host"
)

var validName = regexp.MustCompile(`^[\p{L}\p{N}_][\p{L}\p{N}_'. ]+$`)

func legalPersonName(company string) string { return company + " Legal Person" }
func accountName(company string) string     { return company + " Company Account" }
func currencyName(company string) string    { return company + " Shares" }

// ValidateName checks length bounds and the allowed character class.
func ValidateName(name string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(name)
	if n < minLen {
		return fail(ErrInvalidName, "Company name is too short, must be at least %d characters long", minLen)
	}
	if n > maxLen {
		return fail(ErrInvalidName, "Company name is too long, must be at most %d characters long", maxLen)
	}
	if !validName.MatchString(name) {
		return fail(ErrInvalidName, "Company name contains invalid characters, must only contain letters, digits, underscores, apostrophies or full stops, and must start with a character.")
	}
	return nil
}

// Proposal is the outcome of a creation dry run. Commit only proceeds when
// a fresh dry run yields an equal proposal.
type Proposal struct {
	CEO            host.UserID
	Name           string
	TransferDeeds  []host.DeedID
	JoinSettlement host.SettlementID
}

func (p Proposal) Equal(o Proposal) bool {
	if p.CEO != o.CEO || p.Name != o.Name || p.JoinSettlement != o.JoinSettlement {
		return false
	}
	if len(p.TransferDeeds) != len(o.TransferDeeds) {
		return false
	}
	a := append([]host.DeedID(nil), p.TransferDeeds...)
	b := append([]host.DeedID(nil), o.TransferDeeds...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Describe renders the confirmation prompt for p.
func (e *Engine) Describe(p Proposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This will found a company named '%s' with %s as the CEO.\n", p.Name, e.userName(p.CEO))
	if len(p.TransferDeeds) > 0 {
		names := make([]string, 0, len(p.TransferDeeds))
		for _, id := range p.TransferDeeds {
			if d, ok := e.h.Deed(id); ok {
				names = append(names, d.Name)
			} else {
				names = append(names, string(id))
			}
		}
		fmt.Fprintf(&b, "The following deeds will be transferred to the company upon founding: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("No deeds will be transferred to the company upon founding.\n")
	}
	switch s, ok := e.h.Settlement(p.JoinSettlement); {
	case p.JoinSettlement == "" || !ok:
		b.WriteString("The company will not be considered a citizen of any settlement upon founding.")
	case s.Approver == "":
		fmt.Fprintf(&b, "The company will join %s upon founding.", s.Name)
	default:
		fmt.Fprintf(&b, "The company will apply to join %s upon founding.", s.Name)
	}
	return b.String()
}

// DryRun validates a creation request and computes what founding would do.
func (e *Engine) DryRun(ceo host.UserID, name string) (Proposal, error) {
	u, ok := e.h.User(ceo)
	if !ok {
		return Proposal{}, fail(ErrNotFound, "Unknown user %s", ceo)
	}
	if e.reg.fromLegalPerson(ceo) != nil {
		return Proposal{}, fail(ErrInvalidTarget, "Couldn't found a company as %s is a company legal person", u.Name)
	}
	if existing := e.reg.employerOf(ceo); existing != nil {
		return Proposal{}, fail(ErrAlreadyEmployed, "Couldn't found a company as you're already a member of %s", existing.name)
	}
	cfg := e.cfg()
	name = strings.TrimSpace(name)
	if err := ValidateName(name, cfg.NameMinLen, cfg.NameMaxLen); err != nil {
		return Proposal{}, err
	}
	if _, taken := e.reg.nameReserved(name, legalPersonName); taken {
		return Proposal{}, fail(ErrNameTaken, "A company with the name '%s' already exists", name)
	}
	if _, taken := e.h.UserByName(legalPersonName(name)); taken {
		return Proposal{}, fail(ErrNameTaken, "A company with the name '%s' already exists", name)
	}
	p := Proposal{CEO: ceo, Name: name}
	if cfg.PropertyLimitsEnabled {
		if u.HomesteadDeed != "" {
			p.TransferDeeds = []host.DeedID{u.HomesteadDeed}
		}
		p.JoinSettlement = u.DirectCitizenship
	}
	return p, nil
}

// Commit founds the company described by p. A proposal that no longer
// matches a fresh dry run fails with ErrStateChanged and changes nothing.
func (e *Engine) Commit(ceo host.UserID, name string, p Proposal) (*Company, error) {
	const changed = "Something changed since you tried to create the company. Please try again."
	fresh, err := e.DryRun(ceo, name)
	if err != nil {
		return nil, fail(ErrStateChanged, "%s\n%s", changed, err.Error())
	}
	if !fresh.Equal(p) {
		return nil, fail(ErrStateChanged, changed)
	}

	c := newCompany(fresh.Name, ceo, e.now().UTC())
	c.mu.Lock()
	if err := e.reg.reserve(c, ceo); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := e.bootstrapLocked(c); err != nil {
		e.reg.unreserve(c)
		c.mu.Unlock()
		return nil, e.internal(c, "found "+c.name, err)
	}
	e.changeCEOLocked(c, ceo)
	for _, id := range fresh.TransferDeeds {
		if err := e.transferHomesteadLocked(c, ceo, id); err != nil {
			e.log.Error().Err(err).Str("company", c.name).Str("deed_id", string(id)).Msg("transfer deed on founding")
		}
	}
	if err := e.updateAllAuthListsLocked(c); err != nil {
		e.log.Error().Err(err).Str("company", c.name).Msg("sync auth lists")
	}
	e.h.Broadcast("company", e.userName(ceo)+" has founded the company "+c.name+"!")
	e.persistLocked(c)
	e.auditLocked(c, "found", ceo, ceo, "")
	e.log.Info().Str("company", c.name).Str("user_id", string(ceo)).Msg("company founded")
	joinTarget := fresh.JoinSettlement
	hasCitizenship := e.legalPersonCitizenshipLocked(c) != ""
	c.mu.Unlock()

	if joinTarget != "" && !hasCitizenship {
		if err := e.ApplyToSettlement(c.name, ceo, joinTarget); err != nil {
			e.log.Warn().Err(err).Str("company", c.name).Str("settlement_id", string(joinTarget)).Msg("settlement application during founding failed")
		}
	}
	return c, nil
}

// bootstrapLocked creates the delegate identity, its account and the share
// currency.
func (e *Engine) bootstrapLocked(c *Company) error {
	lp, err := e.h.CreateSynthetic(e.h.UniqueUserName(legalPersonName(c.name)))
	if err != nil {
		return fmt.Errorf("create legal person: %w", err)
	}
	acc, err := e.h.CreateAccount(e.h.UniqueAccountName(accountName(c.name)), host.AccountShared, lp.ID)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	cur, err := e.h.CreateCurrency(e.h.UniqueCurrencyName(currencyName(c.name)), lp.ID)
	if err != nil {
		return fmt.Errorf("create currency: %w", err)
	}
	c.legalPerson = lp.ID
	c.account = acc.ID
	c.currency = cur.ID
	e.reg.bindDelegate(c, lp.ID, acc.ID)
	return nil
}
