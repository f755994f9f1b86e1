// Package apperr classifies the error kinds of spec §7 so callers can decide
// retry-next-cycle versus exit-process with errors.As instead of string
// matching.
package apperr

import "fmt"

// Transient wraps an error that a caller should retry on its own cadence
// (next fetch cycle, next downsample cycle, next gateway call). It is never
// fatal to the process.
type Transient struct {
	Kind string // "upstream", "store_busy", "presence_rate_limited", "presence_gateway"
	Err  error
}

func (e *Transient) Error() string {
	return fmt.Sprintf("%s (transient): %v", e.Kind, e.Err)
}

func (e *Transient) Unwrap() error { return e.Err }

func NewTransient(kind string, err error) *Transient {
	return &Transient{Kind: kind, Err: err}
}

// Fatal wraps an error that must abort the process and rely on external
// supervision to restart it (schema/auth/intents failures).
type Fatal struct {
	Kind string // "store_fatal", "presence_fatal"
	Err  error
}

func (e *Fatal) Error() string {
	return fmt.Sprintf("%s (fatal): %v", e.Kind, e.Err)
}

func (e *Fatal) Unwrap() error { return e.Err }

func NewFatal(kind string, err error) *Fatal {
	return &Fatal{Kind: kind, Err: err}
}
