package util

import (
	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. IDs sort lexicographically by creation
// time, which keeps attempt rows naturally ordered in the ledger.
func New() string {
	return ulid.Make().String()
}
