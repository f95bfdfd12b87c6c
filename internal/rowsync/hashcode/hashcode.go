// Package hashcode combines integer hashes into a single order-sensitive
// fingerprint. It is used to identify rows with composite keys across
// synchronization cycles, where the row values are reloaded and can't be
// compared by reference.
//
// The combination is not cryptographic. Its only purpose is to tell keys
// apart inside the error ledger.
package hashcode

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
)

// MaxInputs is the largest number of hashes Combine accepts.
const MaxInputs = 8

// ErrHashCount is returned when Combine receives fewer than 2 or more than
// MaxInputs hashes.
var ErrHashCount = errors.New("must pass between 2 and 8 hashes")

// Combine2 combines two hashes. Arithmetic wraps around on overflow.
func Combine2(h1, h2 int32) int32 {
	return ((h1 << 5) + h1) ^ h2
}

// Combine combines 2 to 8 hashes. The inputs are split into a first group of
// up to four hashes and the remainder, and both halves are combined
// recursively.
func Combine(hashes ...int32) (int32, error) {
	h := hashes
	switch len(h) {
	case 2:
		return Combine2(h[0], h[1]), nil
	case 3:
		return Combine2(Combine2(h[0], h[1]), h[2]), nil
	case 4:
		return combine4(h[0], h[1], h[2], h[3]), nil
	case 5:
		return Combine2(combine4(h[0], h[1], h[2], h[3]), h[4]), nil
	case 6:
		return Combine2(combine4(h[0], h[1], h[2], h[3]), Combine2(h[4], h[5])), nil
	case 7:
		return Combine2(combine4(h[0], h[1], h[2], h[3]), Combine2(Combine2(h[4], h[5]), h[6])), nil
	case 8:
		return Combine2(combine4(h[0], h[1], h[2], h[3]), combine4(h[4], h[5], h[6], h[7])), nil
	default:
		return 0, fmt.Errorf("combine %d hashes: %w", len(h), ErrHashCount)
	}
}

// MustCombine is like Combine but panics on an invalid number of inputs.
func MustCombine(hashes ...int32) int32 {
	h, err := Combine(hashes...)
	if err != nil {
		panic(err)
	}
	return h
}

func combine4(h1, h2, h3, h4 int32) int32 {
	return Combine2(Combine2(h1, h2), Combine2(h3, h4))
}

// Of returns a stable 32-bit hash of a single key value. Byte slices are
// hashed by content, driver.Valuer implementations by their value, pointers
// by what they point to and everything else by its default formatting.
func Of(value interface{}) int32 {
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return 0
		}
		return Of(rv.Elem().Interface())
	}

	if valuer, ok := value.(driver.Valuer); ok {
		if v, err := valuer.Value(); err == nil {
			return Of(v)
		}
	}

	hasher := fnv.New32a()
	switch v := value.(type) {
	case nil:
		return 0
	case []byte:
		_, _ = hasher.Write(v)
	case string:
		_, _ = hasher.Write([]byte(v))
	default:
		_, _ = fmt.Fprintf(hasher, "%v", v)
	}
	return int32(hasher.Sum32())
}

// OfKey hashes a key made of one or more values. A single value yields its
// own hash, composite keys are combined with Combine.
func OfKey(values ...interface{}) (int32, error) {
	switch len(values) {
	case 0:
		return 0, fmt.Errorf("hash empty key: %w", ErrHashCount)
	case 1:
		return Of(values[0]), nil
	}

	hashes := make([]int32, len(values))
	for i, v := range values {
		hashes[i] = Of(v)
	}
	return Combine(hashes...)
}
