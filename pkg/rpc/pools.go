package rpc

import (
	"strings"

	"github.com/powerhive/minerprobe/pkg/extract"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// ParsePools converts a cgminer POOLS array into PoolData. Entries without
// a URL are dropped; Position is the index in the reply unless the entry
// carries its own POOL number.
func ParsePools(v any) []miner.PoolData {
	arr, ok := extract.Array(v)
	if !ok {
		return nil
	}

	pools := make([]miner.PoolData, 0, len(arr))
	for i, entry := range arr {
		obj, ok := extract.Object(entry)
		if !ok {
			continue
		}
		url, _ := extract.String(obj["URL"])
		if url == "" {
			continue
		}

		pos := i
		if n, ok := extract.Int(obj["POOL"]); ok {
			pos = n
		}
		p := miner.PoolData{
			Position: miner.Ptr(pos),
			URL:      miner.Ptr(url),
		}
		if user, ok := extract.String(obj["User"]); ok && user != "" {
			p.User = miner.Ptr(user)
		}
		if status, ok := extract.String(obj["Status"]); ok {
			p.Alive = miner.Ptr(strings.EqualFold(status, "Alive"))
		}
		if active, ok := extract.Bool(obj["Stratum Active"]); ok {
			p.Active = miner.Ptr(active)
		}
		if n, ok := extract.Uint(obj["Accepted"]); ok {
			p.AcceptedShares = miner.Ptr(n)
		}
		if n, ok := extract.Uint(obj["Rejected"]); ok {
			p.RejectedShares = miner.Ptr(n)
		}
		pools = append(pools, p)
	}
	return pools
}
