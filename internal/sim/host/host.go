package host

// Users is the user registry.
type Users interface {
	User(id UserID) (User, bool)
	UserByName(name string) (User, bool)
	UniqueUserName(base string) string
	CreateSynthetic(name string) (User, error)
	SetHomestead(id UserID, deed DeedID) error
	SetDirectCitizenship(id UserID, s SettlementID) error
}

// Ledger is the banking subsystem.
type Ledger interface {
	Account(id AccountID) (Account, bool)
	Accounts() []Account
	PersonalAccount(owner UserID) (Account, bool)
	CreateAccount(name string, kind AccountKind, owner UserID) (Account, error)
	UniqueAccountName(base string) string
	// SetPermissions replaces both permission sets.
	SetPermissions(id AccountID, managers, users []UserID) error

	Currency(id CurrencyID) (Currency, bool)
	CreateCurrency(name string, creator UserID) (Currency, error)
	UniqueCurrencyName(base string) string
}

// Property is the land registry.
type Property interface {
	Deed(id DeedID) (Deed, bool)
	Deeds() []Deed
	SetOwner(id DeedID, owners Alias) error
	SetAccessors(id DeedID, users []UserID) error
	SetResidencyInvites(id DeedID, users []UserID) error
	SetAllowPlotsUnclaiming(id DeedID, allow bool) error
	// SetPlotsOverride installs a base plot count; 0 removes it.
	SetPlotsOverride(id DeedID, plots int) error
	// RecalculatePlots re-derives AllowedPlots from claim papers and base.
	RecalculatePlots(id DeedID) error
	Rename(id DeedID, name string) (string, error)
	SetCreator(id DeedID, creator UserID) error
	UpdateInfluencingSettlement(id DeedID) error
	BaseHomesteadPlots() int
}

// Citizenship is the settlement roster subsystem.
type Citizenship interface {
	Settlement(id SettlementID) (Settlement, bool)
	Settlements() []Settlement
	HasCitizen(s SettlementID, u UserID) bool
	AddToRoster(s SettlementID, u UserID, direct bool) error
	Leave(s SettlementID, u UserID) error
	Apply(s SettlementID, u UserID) error
	CanApply(s SettlementID, u UserID) bool
	CanAcceptInvitation(s SettlementID, u UserID) bool
	CanLeave(s SettlementID, u UserID) bool
	CheckCanJoin(s SettlementID, u UserID) error
	CheckCanLeave(s SettlementID, u UserID) error
}

type Reputation interface {
	Entries(u UserID) []ReputationEntry
	SetSource(u UserID, source string, amount float64) error
}

type VoidStorages interface {
	Storages() []VoidStorage
	GrantAccess(id StorageID, users []UserID) error
}

// Notifier delivers chat and mail to users.
type Notifier interface {
	Notify(u UserID, category, msg string)
	Broadcast(category, msg string)
}

// Notifiers fans one notification out to several sinks.
type Notifiers []Notifier

func (n Notifiers) Notify(u UserID, category, msg string) {
	for _, x := range n {
		x.Notify(u, category, msg)
	}
}

func (n Notifiers) Broadcast(category, msg string) {
	for _, x := range n {
		x.Broadcast(category, msg)
	}
}

// Host bundles every collaborator contract.
type Host interface {
	Users
	Ledger
	Property
	Citizenship
	Reputation
	VoidStorages
	Notifier
	Actions
	Events
}
