package companies

import "time"

const (
	avgPositiveSource = "AVG Positive Reputation"
	avgNegativeSource = "AVG Negative Reputation"
)

func (e *Engine) scheduleReputationRefresh(company string, delay time.Duration) {
	e.sched.After(delay, "reputation:"+company, func() error {
		_, _, err := e.RefreshReputation(company)
		return err
	})
}

// RefreshReputation publishes the members' mean reputation on the delegate
// as two sources, one positive and one negative. Concurrent refreshes are
// last-write-wins.
func (e *Engine) RefreshReputation(company string) (pos, neg float64, err error) {
	c := e.reg.get(company)
	if c == nil {
		// The company may be gone by the time a deferred refresh runs.
		return 0, 0, nil
	}
	cfg := e.cfg()
	if !cfg.ReputationAveragesEnabled {
		return 0, 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.allEmployeesLocked()
	if len(members) == 0 {
		return 0, 0, nil
	}
	for _, u := range members {
		for _, entry := range e.h.Entries(u) {
			if entry.Source == avgPositiveSource || entry.Source == avgNegativeSource {
				continue
			}
			if cfg.ReputationAveragesBonusEnabled && !cfg.IsBonusSource(entry.Source) {
				continue
			}
			if entry.Amount >= 0 {
				pos += entry.Amount
			} else {
				neg += entry.Amount
			}
		}
	}
	n := float64(len(members))
	pos, neg = pos/n, neg/n
	if err := e.setReputationLocked(c, pos, neg); err != nil {
		return 0, 0, e.internal(c, "update the company reputation", err)
	}
	e.log.Debug().Str("company", c.name).Float64("positive", pos).Float64("negative", neg).Msg("reputation averaged")
	return pos, neg, nil
}

func (e *Engine) setReputationLocked(c *Company, pos, neg float64) error {
	if err := e.h.SetSource(c.legalPerson, avgPositiveSource, pos); err != nil {
		return err
	}
	return e.h.SetSource(c.legalPerson, avgNegativeSource, neg)
}

// ReputationOf sums the delegate's published averages.
func (e *Engine) ReputationOf(company string) (pos, neg float64) {
	c := e.reg.get(company)
	if c == nil {
		return 0, 0
	}
	for _, entry := range e.h.Entries(c.LegalPerson()) {
		switch entry.Source {
		case avgPositiveSource:
			pos = entry.Amount
		case avgNegativeSource:
			neg = entry.Amount
		}
	}
	return pos, neg
}
