package host

type (
	UserID       string
	DeedID       string
	AccountID    string
	CurrencyID   string
	SettlementID string
	StorageID    string
)

// Alias is an owner set. Deeds and storages are owned by aliases.
type Alias []UserID

func Single(id UserID) Alias {
	if id == "" {
		return nil
	}
	return Alias{id}
}

func (a Alias) Contains(id UserID) bool {
	for _, u := range a {
		if u == id {
			return true
		}
	}
	return false
}

// Sole returns the only member of a one-user alias.
func (a Alias) Sole() (UserID, bool) {
	if len(a) != 1 {
		return "", false
	}
	return a[0], true
}

type User struct {
	ID        UserID
	Name      string
	Synthetic bool
	Online    bool

	HomesteadDeed DeedID
	// DirectCitizenship is the user's cached settlement. The roster on the
	// settlement is authoritative; the two can drift.
	DirectCitizenship SettlementID
}

type Deed struct {
	ID        DeedID
	Name      string
	Owners    Alias
	Creator   UserID
	Homestead bool
	Destroyed bool

	Accessors            []UserID
	ResidencyInvites     []UserID
	AllowPlotsUnclaiming bool

	// PlotsOverride replaces the base plot count when > 0.
	PlotsOverride int
	ClaimPapers   int
	AllowedPlots  int
	ClaimedPlots  int

	InfluencingSettlement SettlementID
	OwningSettlement      SettlementID
}

type AccountKind int

const (
	AccountPersonal AccountKind = iota
	AccountGovernment
	AccountShared
)

func (k AccountKind) String() string {
	switch k {
	case AccountPersonal:
		return "personal"
	case AccountGovernment:
		return "government"
	default:
		return "shared"
	}
}

type Account struct {
	ID       AccountID
	Name     string
	Kind     AccountKind
	Owner    UserID
	Managers []UserID
	Users    []UserID
	Holdings map[CurrencyID]float64
}

func (a Account) IsManager(u UserID) bool { return containsUser(a.Managers, u) }
func (a Account) IsUser(u UserID) bool    { return containsUser(a.Users, u) }

type Currency struct {
	ID      CurrencyID
	Name    string
	Creator UserID
}

type Settlement struct {
	ID       SettlementID
	Name     string
	Approver UserID
	Parent   SettlementID
	Open     bool

	Citizens   []UserID
	Applicants []UserID
	Invitees   []UserID
	Banned     []UserID
	// RetainsHomesteads blocks citizens who own a homestead in the
	// settlement from leaving.
	RetainsHomesteads bool
}

type VoidStorage struct {
	ID        StorageID
	Name      string
	CanAccess []UserID
}

type ReputationEntry struct {
	Source string
	Amount float64
}

func containsUser(list []UserID, u UserID) bool {
	for _, x := range list {
		if x == u {
			return true
		}
	}
	return false
}

// SameUsers reports whether a and b hold the same users, ignoring order.
func SameUsers(a, b []UserID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[UserID]int, len(a))
	for _, u := range a {
		seen[u]++
	}
	for _, u := range b {
		if seen[u] == 0 {
			return false
		}
		seen[u]--
	}
	return true
}
