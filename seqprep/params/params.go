// Package params is the ambient parameter-binding registry for preprocessing
// operations. Callers bind `<operation>.<field>` keys before constructing a
// pipeline; operation configs fill their unset fields from here. Explicit
// config values always win over bound ones.
//
// The registry exists for pipeline wiring that names operations instead of
// calling them (see pipeline.DataStreams); direct callers should prefer the
// explicit config structs.
package params

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// ErrMissingParam indicates a required parameter was neither set on the
// config struct nor bound in the registry.
var ErrMissingParam = fmt.Errorf("seqprep: missing required parameter")

var (
	mu  sync.RWMutex
	reg = viper.New()
)

// Bind registers a value under key, overwriting any previous binding.
func Bind(key string, value any) {
	mu.Lock()
	defer mu.Unlock()
	reg.Set(key, value)
}

// Reset drops every binding. Tests call this in their setup so bindings
// cannot leak between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	reg = viper.New()
}

// Has reports whether key is bound.
func Has(key string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return reg.IsSet(key)
}

// String returns the bound string for key.
func String(key string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !reg.IsSet(key) {
		return "", false
	}
	return reg.GetString(key), true
}

// Int returns the bound int for key.
func Int(key string) (int, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !reg.IsSet(key) {
		return 0, false
	}
	return reg.GetInt(key), true
}

// Float returns the bound float64 for key.
func Float(key string) (float64, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !reg.IsSet(key) {
		return 0, false
	}
	return reg.GetFloat64(key), true
}

// Bool returns the bound bool for key.
func Bool(key string) (bool, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !reg.IsSet(key) {
		return false, false
	}
	return reg.GetBool(key), true
}

// Strings returns the bound string slice for key.
func Strings(key string) ([]string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !reg.IsSet(key) {
		return nil, false
	}
	return reg.GetStringSlice(key), true
}

// Ints returns the bound int slice for key.
func Ints(key string) ([]int, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !reg.IsSet(key) {
		return nil, false
	}
	return reg.GetIntSlice(key), true
}

// Missing builds the error returned for a required-but-unbound parameter.
// The key names the registry entry that would have satisfied it.
func Missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissingParam, key)
}
