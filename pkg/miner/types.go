package miner

import "strings"

// Make is the hardware manufacturer of a miner.
type Make string

const (
	MakeAntMiner    Make = "AntMiner"
	MakeWhatsMiner  Make = "WhatsMiner"
	MakeAvalonMiner Make = "AvalonMiner"
	MakeEPic        Make = "ePIC"
	MakeBraiins     Make = "Braiins"
	MakeBitAxe      Make = "BitAxe"
)

// AllMakes returns every known make in discovery order.
func AllMakes() []Make {
	return []Make{MakeAntMiner, MakeWhatsMiner, MakeAvalonMiner, MakeEPic, MakeBraiins, MakeBitAxe}
}

// ParseMake parses a make name case-insensitively.
func ParseMake(s string) (Make, bool) {
	for _, m := range AllMakes() {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, true
		}
	}
	return "", false
}

// Firmware is the software stack running on a miner.
type Firmware string

const (
	FirmwareStock     Firmware = "Stock"
	FirmwareBraiinsOS Firmware = "BraiinsOS"
	FirmwareVNish     Firmware = "VNish"
	FirmwareEPic      Firmware = "ePIC"
	FirmwareHiveOS    Firmware = "HiveOS"
	FirmwareLuxOS     Firmware = "LuxOS"
	FirmwareMarathon  Firmware = "Marathon"
	FirmwareMSKMiner  Firmware = "MSKMiner"
)

// AllFirmwares returns every known firmware in discovery order.
func AllFirmwares() []Firmware {
	return []Firmware{
		FirmwareStock, FirmwareBraiinsOS, FirmwareVNish, FirmwareEPic,
		FirmwareHiveOS, FirmwareLuxOS, FirmwareMarathon, FirmwareMSKMiner,
	}
}

// ParseFirmware parses a firmware name case-insensitively.
func ParseFirmware(s string) (Firmware, bool) {
	for _, f := range AllFirmwares() {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, true
		}
	}
	return "", false
}

// HashAlgorithm is the proof-of-work algorithm a miner computes.
type HashAlgorithm string

const (
	AlgoSHA256     HashAlgorithm = "SHA256"
	AlgoScrypt     HashAlgorithm = "Scrypt"
	AlgoX11        HashAlgorithm = "X11"
	AlgoBlake2S256 HashAlgorithm = "Blake2S256"
	AlgoKadena     HashAlgorithm = "Kadena"
)
