// Package metrics records per-call samples and reduces them to latency and
// throughput statistics.
package metrics

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dshills/vsbench/core"
)

// Kind identifies the API operation a sample measured
type Kind string

const (
	KindCreate         Kind = "create"
	KindAdd            Kind = "add"
	KindSearch         Kind = "search"
	KindSave           Kind = "save"
	KindLoad           Kind = "load"
	KindDelete         Kind = "delete"
	KindDeleteFromDisk Kind = "delete_from_disk"
)

// Kinds lists every operation kind in phase order
var Kinds = []Kind{KindCreate, KindAdd, KindSearch, KindSave, KindLoad, KindDelete, KindDeleteFromDisk}

// Code classifies a failed sample
type Code string

const (
	CodeNone        Code = ""
	CodeAPI         Code = "api_error"
	CodeTransport   Code = "transport_error"
	CodeTimeout     Code = "timeout"
	CodePoolTimeout Code = "pool_timeout"
)

// Sample is the measurement of a single API call. Samples are immutable once
// recorded.
type Sample struct {
	Kind    Kind      `json:"kind"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Success bool      `json:"success"`
	Status  int       `json:"status"`
	Code    Code      `json:"code,omitempty"`
}

// Latency returns the measured duration of the call
func (s Sample) Latency() time.Duration {
	return s.End.Sub(s.Start)
}

// NewSample builds a sample for a call that ran from start to end and
// returned err.
func NewSample(kind Kind, start, end time.Time, err error) Sample {
	status, code := Classify(err)
	return Sample{
		Kind:    kind,
		Start:   start,
		End:     end,
		Success: err == nil,
		Status:  status,
		Code:    code,
	}
}

// Classify maps a call error to an HTTP status (0 when no response was
// obtained) and a failure code.
func Classify(err error) (int, Code) {
	if err == nil {
		return 200, CodeNone
	}

	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, CodeAPI
	}

	if errors.Is(err, core.ErrPoolTimeout) {
		return 0, CodePoolTimeout
	}

	var transportErr *core.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Timeout {
			return 0, CodeTimeout
		}
		return 0, CodeTransport
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return 0, CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, CodeTimeout
	}

	return 0, CodeTransport
}
