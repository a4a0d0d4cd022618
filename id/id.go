// Package id defines the TypeID identifiers used for fundme records.
//
// Contributor and owner identities are chain addresses, not IDs. IDs name
// the records the ledger writes about them: deployments, contributions and
// withdrawal receipts.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

// Record prefixes.
const (
	PrefixDeployment   Prefix = "dep"
	PrefixContribution Prefix = "ctb"
	PrefixWithdrawal   Prefix = "wdr"
)

// ID is a prefix-qualified TypeID such as "ctb_01h2xcejqtf2nbrexx3vqjhp41".
// The zero value is Nil and renders as an empty string.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID with the given prefix. It panics on a prefix TypeID
// does not accept, which only a programming error can produce.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: bad prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, ok: true}
}

// NewDeploymentID generates a deployment ID.
func NewDeploymentID() ID { return New(PrefixDeployment) }

// NewContributionID generates a contribution ID.
func NewContributionID() ID { return New(PrefixContribution) }

// NewWithdrawalID generates a withdrawal receipt ID.
func NewWithdrawalID() ID { return New(PrefixWithdrawal) }

// Parse parses any fundme ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseAs(s string, want Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %s ID, want %s", s, got, want)
	}
	return v, nil
}

// ParseDeploymentID parses s and requires the "dep" prefix.
func ParseDeploymentID(s string) (ID, error) { return parseAs(s, PrefixDeployment) }

// ParseContributionID parses s and requires the "ctb" prefix.
func ParseContributionID(s string) (ID, error) { return parseAs(s, PrefixContribution) }

// ParseWithdrawalID parses s and requires the "wdr" prefix.
func ParseWithdrawalID(s string) (ID, error) { return parseAs(s, PrefixWithdrawal) }

// ──────────────────────────────────────────────────
// Encoding
// ──────────────────────────────────────────────────

func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the record type of i, empty for Nil.
func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.ok }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.ok {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

// Scan implements sql.Scanner for TEXT and BLOB columns.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
