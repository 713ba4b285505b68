package cache

import (
	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
)

// KeyPrefix namespaces every payload key.
const KeyPrefix = "nrdata:payload:"

// Key returns the Redis key for id.
//
// Example:
//
//	nrdata:payload:12345678901
func Key(id nr.Identifier) string {
	return KeyPrefix + id.String()
}
