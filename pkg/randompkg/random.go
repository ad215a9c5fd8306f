// Package randompkg provides functionality for generating random application items.
package randompkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// Intn is a shortcut for generating a random integer between 0 and max using crypto/rand.
func Intn(max int64) int64 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		panic(err)
	}

	return nBig.Int64()
}

// Int64Between generates a random integer in [min, max].
func Int64Between(min, max int64) int64 {
	return min + Intn(max-min+1)
}

// String generates a random string of length n.
func String(n int) string {
	var sb strings.Builder

	k := int64(len(alphabet))

	for i := 0; i < n; i++ {
		c := alphabet[Intn(k)]

		_ = sb.WriteByte(c) // The returned err is always nil.
	}

	return sb.String()
}

// Name generates a random first or last name.
func Name() string {
	return String(6)
}

// Email generates a random email, used as a username.
func Email() string {
	return fmt.Sprintf("%s@email.com", String(10))
}

// AccountID generates a random account id.
func AccountID() string {
	return uuid.NewString()
}

// MinorUnitsBetween generates a random amount of money in minor units.
func MinorUnitsBetween(min, max int64) int64 {
	return Int64Between(min, max)
}

// MoneyAmountBetween generates a random decimal amount between min and max
// minor units, formatted with two fractional digits.
func MoneyAmountBetween(min, max int64) string {
	return decimal.New(MinorUnitsBetween(min, max), -2).StringFixed(2)
}
