package whatsminer

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
)

// Prober resolves the model and firmware version of a WhatsMiner.
type Prober struct {
	rpcOpts []rpc.ClientOption
	v3Opts  []V3Option
	timeout time.Duration
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProberTimeout sets the probe timeout.
func WithProberTimeout(timeout time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithRPCOptions passes options to the BTMiner API client.
func WithRPCOptions(opts ...rpc.ClientOption) ProberOption {
	return func(p *Prober) {
		p.rpcOpts = append(p.rpcOpts, opts...)
	}
}

// WithV3Options passes options to the API v3 client.
func WithV3Options(opts ...V3Option) ProberOption {
	return func(p *Prober) {
		p.v3Opts = append(p.v3Opts, opts...)
	}
}

// NewProber creates a WhatsMiner prober.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe reads fw_ver to pick the API generation, then reads the model from
// devdetails (BTMiner API) or get.device.info (API v3).
func (p *Prober) Probe(ctx context.Context, host string) (miner.Model, *semver.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	legacy := rpc.NewClient(host, append([]rpc.ClientOption{rpc.WithLenientStatus()}, p.rpcOpts...)...)
	v3 := NewV3Client(host, p.v3Opts...)

	var (
		fw        string
		v3DevInfo any
	)
	if doc, err := legacy.Send(ctx, cmdGetVersion); err == nil {
		fw, _ = extract.String(pointer(doc, "/Msg/fw_ver"))
	}
	if fw == "" {
		doc, err := v3.Send(ctx, cmdDeviceInfo)
		if err != nil {
			return miner.Model{}, nil, fmt.Errorf("get_version: %w", err)
		}
		v3DevInfo = doc
		fw, _ = extract.String(pointer(doc, "/msg/system/fwversion"))
	}

	version, err := ParseFirmwareVersion(fw)
	if err != nil {
		return miner.Model{}, nil, err
	}

	var name string
	if UsesV3(version) {
		if v3DevInfo == nil {
			if v3DevInfo, err = v3.Send(ctx, cmdDeviceInfo); err != nil {
				return miner.Model{Make: miner.MakeWhatsMiner}, version, nil
			}
		}
		name, _ = extract.String(pointer(v3DevInfo, "/msg/miner/type"))
	} else if doc, err := legacy.Send(ctx, cmdDevDetails); err == nil {
		name, _ = extract.String(pointer(doc, "/DEVDETAILS/0/Model"))
	}

	return miner.ParseModel(miner.MakeWhatsMiner, name), version, nil
}

// Dial creates the backend matching the firmware's API generation.
func Dial(ip string, model miner.Model, version *semver.Version, rpcOpts []rpc.ClientOption, v3Opts []V3Option, opts ...collector.Option) miner.Miner {
	if UsesV3(version) {
		return DialV3(ip, model, v3Opts, opts...)
	}
	return DialV2(ip, model, rpcOpts, opts...)
}
