// Package miner provides shared interfaces and types for miner interaction.
// This package defines abstractions that decouple discovery and collection
// from specific firmware implementations.
package miner

import (
	"context"
	"errors"
)

// ErrUnsupportedCommand is returned by a Client asked to send a command kind
// it has no transport for.
var ErrUnsupportedCommand = errors.New("unsupported command")

// Client sends commands to one miner.
// Implementations include rpc.Client for the cgminer API and the vendor
// web clients in the backend packages.
type Client interface {
	// Send issues cmd and returns the decoded JSON document.
	Send(ctx context.Context, cmd Command) (any, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, cmd Command) (any, error)

// Send calls f.
func (f ClientFunc) Send(ctx context.Context, cmd Command) (any, error) {
	return f(ctx, cmd)
}

// Miner is a connected, identified miner backend.
// Each firmware implementation (stock, vnish, luxos, ...) provides its own.
type Miner interface {
	// IP returns the miner's address.
	IP() string

	// DeviceInfo returns what the miner was identified as.
	DeviceInfo() DeviceInfo

	// GetData collects and normalizes all telemetry. Missing data is left
	// empty; collection itself never fails.
	GetData(ctx context.Context) *MinerData
}

// Dispatch routes each command to the transport for its kind. Backends that
// speak both RPC and HTTP use it as their Client.
type Dispatch struct {
	RPC Client
	Web Client
}

// Send implements Client.
func (d Dispatch) Send(ctx context.Context, cmd Command) (any, error) {
	var target Client
	switch cmd.Kind {
	case KindRPC:
		target = d.RPC
	case KindWeb:
		target = d.Web
	}
	if target == nil {
		return nil, ErrUnsupportedCommand
	}
	return target.Send(ctx, cmd)
}
