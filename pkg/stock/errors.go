package stock

import "errors"

var (
	// ErrNotStockFirmware indicates the host is not running stock Bitmain firmware.
	ErrNotStockFirmware = errors.New("host is not running stock Bitmain firmware")

	// ErrAuthenticationFailed indicates the miner rejected the digest credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
