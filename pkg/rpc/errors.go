package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed indicates the RPC port could not be reached.
	ErrConnectionFailed = errors.New("rpc connection failed")

	// ErrNoData indicates the miner closed the connection without replying.
	ErrNoData = errors.New("no data returned from the API")

	// ErrInvalidResponse indicates the reply was not a cgminer-style document.
	ErrInvalidResponse = errors.New("invalid response format")
)

// StatusError is a reply whose STATUS field reports a failure.
type StatusError struct {
	Status string
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Status == "E" {
		return fmt.Sprintf("api command error: %s", e.Msg)
	}
	return fmt.Sprintf("unknown api status %q: %s", e.Status, e.Msg)
}
