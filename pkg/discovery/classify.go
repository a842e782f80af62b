package discovery

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/web"
)

// Classification is the outcome of phase one. Either field may be empty:
// a BraiinsOS banner names the firmware but not the hardware make.
type Classification struct {
	Make     miner.Make
	Firmware miner.Firmware
}

func (c Classification) String() string {
	mk, fw := string(c.Make), string(c.Firmware)
	if mk == "" {
		mk = "?"
	}
	if fw == "" {
		fw = "?"
	}
	return mk + "/" + fw
}

type rpcRule struct {
	match  func(s string) bool
	result Classification
}

func containsAny(tokens ...string) func(string) bool {
	return func(s string) bool {
		for _, t := range tokens {
			if strings.Contains(s, t) {
				return true
			}
		}
		return false
	}
}

// rpcRules are tried in order; payloads often carry several vendor tokens.
var rpcRules = []rpcRule{
	{containsAny("BOSMINER", "BOSER"), Classification{Firmware: miner.FirmwareBraiinsOS}},
	{containsAny("LUXMINER"), Classification{Firmware: miner.FirmwareLuxOS}},
	{containsAny("BITMICRO", "BTMINER"), Classification{miner.MakeWhatsMiner, miner.FirmwareStock}},
	// devdetails on other firmwares echoes the Antminer model name.
	{func(s string) bool {
		return strings.Contains(s, "ANTMINER") && !strings.Contains(s, "DEVDETAILS")
	}, Classification{miner.MakeAntMiner, miner.FirmwareStock}},
	{containsAny("AVALON"), Classification{miner.MakeAvalonMiner, miner.FirmwareStock}},
	{containsAny("VNISH"), Classification{Firmware: miner.FirmwareVNish}},
}

// ClassifyRPC classifies a raw cgminer reply by upper-casing the whole
// payload and matching vendor tokens.
func ClassifyRPC(payload []byte) (Classification, bool) {
	s := string(bytes.ToUpper(payload))
	for _, r := range rpcRules {
		if r.match(s) {
			return r.result, true
		}
	}
	return Classification{}, false
}

// ClassifyWeb classifies a dashboard page from its status, headers and
// body. The first matching rule wins.
func ClassifyWeb(page *web.Page) (Classification, bool) {
	if page == nil {
		return Classification{}, false
	}
	auth := page.Header.Get("WWW-Authenticate")
	location := page.Header.Get("Location")
	body := page.Body

	switch {
	case page.StatusCode == http.StatusUnauthorized && strings.Contains(auth, `realm="antMiner`):
		return Classification{miner.MakeAntMiner, miner.FirmwareStock}, true
	case strings.Contains(body, "Braiins OS"):
		return Classification{Firmware: miner.FirmwareBraiinsOS}, true
	case strings.Contains(body, "Luxor Firmware"):
		return Classification{Firmware: miner.FirmwareLuxOS}, true
	case strings.Contains(body, "AxeOS"):
		return Classification{miner.MakeBitAxe, miner.FirmwareStock}, true
	case strings.Contains(body, "Miner Web Dashboard"):
		return Classification{Firmware: miner.FirmwareEPic}, true
	case strings.Contains(body, "Avalon"):
		return Classification{miner.MakeAvalonMiner, miner.FirmwareStock}, true
	case strings.Contains(body, "AnthillOS"):
		return Classification{Firmware: miner.FirmwareVNish}, true
	case strings.Contains(location, "https://") && page.StatusCode == http.StatusTemporaryRedirect,
		strings.Contains(body, "/cgi-bin/luci"):
		return Classification{miner.MakeWhatsMiner, miner.FirmwareStock}, true
	}
	return Classification{}, false
}
