package relay

import (
	"math/rand/v2"
	"strconv"
)

// nonceCeiling keeps nonces inside the range of integers a JSON number can
// carry exactly, with a factor of ten to spare.
const nonceCeiling = (1<<53 - 1) / 10

// GenerateNonce returns a decimal token for client-side deduplication of a
// send. It is not a secret.
func GenerateNonce() string {
	return strconv.FormatInt(rand.Int64N(nonceCeiling+1), 10)
}
