package fundme

import "github.com/xraph/fundme/id"

// ID is the identifier type of fundme records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
