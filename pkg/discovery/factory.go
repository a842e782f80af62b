package discovery

import (
	"context"
	"fmt"

	"github.com/powerhive/minerprobe/pkg/avalon"
	"github.com/powerhive/minerprobe/pkg/bitaxe"
	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/epic"
	"github.com/powerhive/minerprobe/pkg/luxos"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/stock"
	"github.com/powerhive/minerprobe/pkg/vnish"
	"github.com/powerhive/minerprobe/pkg/whatsminer"
)

// NewMiner creates the backend for an identified miner. The firmware
// decides first, since aftermarket firmwares replace the vendor API; stock
// firmware is then keyed on the make.
func (d *Detector) NewMiner(id *Identity, opts ...collector.Option) (miner.Miner, error) {
	ip, model := id.IP, id.Model
	if model.Make == "" {
		model.Make = id.Make
	}
	opts = append([]collector.Option{collector.WithLogger(d.logger)}, opts...)

	switch id.Firmware {
	case miner.FirmwareVNish:
		return vnish.Dial(ip, model, vnish.NewAuthManager(d.creds.VNishPassword), []vnish.ClientOption{
			vnish.WithBaseURL("http://" + hostPort(ip, d.httpPort, false) + "/api/v1"),
		}, opts...), nil
	case miner.FirmwareEPic:
		client := epic.NewClient("http://" + hostPort(ip, d.epicPort, false))
		return epic.New(ip, model, client, opts...), nil
	case miner.FirmwareLuxOS:
		return luxos.Dial(ip, model, d.rpcOpts, opts...), nil
	case miner.FirmwareStock, "":
	default:
		return nil, fmt.Errorf("%w: %s firmware", ErrUnsupported, id.Firmware)
	}

	switch id.Make {
	case miner.MakeAntMiner:
		return stock.Dial(ip, model, d.digestAuth(), d.rpcOpts, opts...), nil
	case miner.MakeWhatsMiner:
		return whatsminer.Dial(ip, model, id.Version, d.rpcOpts, nil, opts...), nil
	case miner.MakeAvalonMiner:
		return avalon.Dial(ip, model, d.rpcOpts, opts...), nil
	case miner.MakeBitAxe:
		client := bitaxe.NewClient("http://" + hostPort(ip, d.httpPort, false))
		return bitaxe.New(ip, model, client, opts...), nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, id.Make, id.Firmware)
}

// GetMiner identifies host and returns its backend.
func (d *Detector) GetMiner(ctx context.Context, host string, opts ...collector.Option) (miner.Miner, *Identity, error) {
	id, err := d.Identify(ctx, host)
	if err != nil {
		return nil, nil, err
	}
	m, err := d.NewMiner(id, opts...)
	if err != nil {
		return nil, id, err
	}
	return m, id, nil
}

// Collect identifies host and collects its telemetry.
func (d *Detector) Collect(ctx context.Context, host string, opts ...collector.Option) (*miner.MinerData, *Identity, error) {
	m, id, err := d.GetMiner(ctx, host, opts...)
	if err != nil {
		return nil, id, err
	}
	data := m.GetData(ctx)
	if data.FirmwareVersion == nil && id.FirmwareVersion != "" {
		data.FirmwareVersion = miner.Ptr(id.FirmwareVersion)
	}
	return data, id, nil
}
