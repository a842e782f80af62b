package discovery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/powerhive/minerprobe/pkg/bitaxe"
	"github.com/powerhive/minerprobe/pkg/epic"
	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/rpc"
	"github.com/powerhive/minerprobe/pkg/stock"
	"github.com/powerhive/minerprobe/pkg/vnish"
	"github.com/powerhive/minerprobe/pkg/whatsminer"
)

const modelTimeout = 5 * time.Second

type resolution struct {
	model   miner.Model
	version string
	semver  *semver.Version
}

// resolveModel is phase two: a known make picks the lookup, otherwise the
// firmware does. Failures leave the model unknown but keep the make.
func (d *Detector) resolveModel(ctx context.Context, host string, c Classification) resolution {
	var (
		res resolution
		err error
	)
	switch {
	case c.Make != "":
		res, err = d.modelByMake(ctx, host, c.Make)
	case c.Firmware != "":
		res, err = d.modelByFirmware(ctx, host, c.Firmware)
	}
	if err != nil {
		d.logger.Debug("model lookup failed", slog.String("host", host), slog.String("class", c.String()), slog.Any("error", err))
	}

	if res.model.Make == "" {
		res.model.Make = c.Make
	}
	if res.semver == nil && res.version != "" {
		res.semver = parseVersion(res.version)
	}
	return res
}

func (d *Detector) modelByMake(ctx context.Context, host string, mk miner.Make) (resolution, error) {
	switch mk {
	case miner.MakeAvalonMiner:
		doc, err := d.rpcCall(ctx, host, "version")
		if err != nil {
			return resolution{}, err
		}
		return resolution{model: AvalonModel(doc)}, nil

	case miner.MakeAntMiner:
		p := stock.NewProber(d.digestAuth(), stock.WithClientOptions(
			stock.WithBaseURL("http://"+hostPort(host, d.httpPort, false)+"/cgi-bin"),
		))
		model, version, err := p.Probe(ctx, host)
		return resolution{model: model, version: version}, err

	case miner.MakeWhatsMiner:
		p := whatsminer.NewProber(whatsminer.WithRPCOptions(d.rpcOpts...))
		model, version, err := p.Probe(ctx, host)
		if err != nil {
			return resolution{}, err
		}
		return resolution{model: model, version: version.String(), semver: version}, nil

	case miner.MakeBitAxe:
		model, version, err := bitaxe.NewProber().Probe(ctx, "http://"+hostPort(host, d.httpPort, false))
		return resolution{model: model, version: version}, err
	}
	return resolution{}, nil
}

func (d *Detector) modelByFirmware(ctx context.Context, host string, fw miner.Firmware) (resolution, error) {
	switch fw {
	case miner.FirmwareVNish:
		p := vnish.NewProber(vnish.NewAuthManager(d.creds.VNishPassword), vnish.WithClientOptions(
			vnish.WithBaseURL("http://"+hostPort(host, d.httpPort, false)+"/api/v1"),
		))
		model, version, err := p.Probe(ctx, host)
		return resolution{model: model, version: version}, err

	case miner.FirmwareEPic:
		model, version, err := epic.NewProber().Probe(ctx, "http://"+hostPort(host, d.epicPort, false))
		return resolution{model: model, version: version}, err

	case miner.FirmwareLuxOS:
		doc, err := d.rpcCall(ctx, host, "version")
		if err != nil {
			return resolution{}, err
		}
		name, _ := extract.String(pointer(doc, "/VERSION/0/Type"))
		version, _ := extract.String(pointer(doc, "/VERSION/0/LUXminer"))
		return resolution{
			model:   miner.ParseModelForFirmware(miner.FirmwareLuxOS, strings.ToUpper(name)),
			version: version,
		}, nil

	case miner.FirmwareBraiinsOS:
		doc, err := d.rpcCall(ctx, host, "devdetails")
		if err != nil {
			return resolution{}, err
		}
		name, _ := extract.String(pointer(doc, "/DEVDETAILS/0/Model"))
		return resolution{model: BraiinsModel(name)}, nil
	}
	return resolution{}, nil
}

// AvalonModel reads the model from an Avalon version reply. PROD carries a
// hardware revision after "-"; Nano and newer units put the model in MODEL.
func AvalonModel(doc any) miner.Model {
	if prod, ok := extract.String(pointer(doc, "/VERSION/0/PROD")); ok && prod != "" {
		name, _, _ := strings.Cut(strings.ToUpper(prod), "-")
		switch name {
		case "AVALONNANO", "AVALON0O", "AVALONMINER 15":
			if sub, ok := extract.String(pointer(doc, "/VERSION/0/MODEL")); ok && sub != "" {
				name = "AVALONMINER " + strings.ToUpper(sub)
			}
		}
		return miner.ParseModel(miner.MakeAvalonMiner, name)
	}
	if model, ok := extract.String(pointer(doc, "/VERSION/0/MODEL")); ok && model != "" {
		name, _, _ := strings.Cut(model, "-")
		return miner.ParseModel(miner.MakeAvalonMiner, strings.ToUpper(name))
	}
	return miner.Model{Make: miner.MakeAvalonMiner}
}

// BraiinsModel normalizes a BraiinsOS devdetails model string.
func BraiinsModel(name string) miner.Model {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "BITMAIN ", "")
	name = strings.ReplaceAll(name, "S19XP", "S19 XP")
	return miner.ParseModelForFirmware(miner.FirmwareBraiinsOS, name)
}

func (d *Detector) rpcCall(ctx context.Context, host, command string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, modelTimeout)
	defer cancel()

	opts := append([]rpc.ClientOption{rpc.WithLenientStatus(), rpc.WithTimeout(modelTimeout)}, d.rpcOpts...)
	return rpc.NewClient(host, opts...).Call(ctx, command, "")
}

func (d *Detector) digestAuth() *stock.DigestAuth {
	if d.creds.StockUsername == "" {
		return stock.NewDigestAuth()
	}
	return stock.NewDigestAuthWithCredentials(d.creds.StockUsername, d.creds.StockPassword)
}

// parseVersion accepts "1.2.6", "v2.4.2-dirty" and two-part versions;
// pre-release and build tags are dropped.
func parseVersion(s string) *semver.Version {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
}

func pointer(doc any, path string) any {
	v, _ := extract.Pointer(doc, path)
	return v
}
