package miner

// DataField names one normalized telemetry attribute.
type DataField string

const (
	FieldMac                 DataField = "mac"
	FieldSerialNumber        DataField = "serial_number"
	FieldHostname            DataField = "hostname"
	FieldApiVersion          DataField = "api_version"
	FieldFirmwareVersion     DataField = "firmware_version"
	FieldControlBoardVersion DataField = "control_board_version"
	FieldHashboards          DataField = "hashboards"
	FieldHashrate            DataField = "hashrate"
	FieldExpectedHashrate    DataField = "expected_hashrate"
	FieldFans                DataField = "fans"
	FieldPsuFans             DataField = "psu_fans"
	FieldFluidTemperature    DataField = "fluid_temperature"
	FieldWattage             DataField = "wattage"
	FieldWattageLimit        DataField = "wattage_limit"
	FieldLightFlashing       DataField = "light_flashing"
	FieldMessages            DataField = "messages"
	FieldUptime              DataField = "uptime"
	FieldIsMining            DataField = "is_mining"
	FieldPools               DataField = "pools"
)

// AllFields returns every DataField.
func AllFields() []DataField {
	return []DataField{
		FieldMac, FieldSerialNumber, FieldHostname, FieldApiVersion, FieldFirmwareVersion,
		FieldControlBoardVersion, FieldHashboards, FieldHashrate, FieldExpectedHashrate,
		FieldFans, FieldPsuFans, FieldFluidTemperature, FieldWattage, FieldWattageLimit,
		FieldLightFlashing, FieldMessages, FieldUptime, FieldIsMining, FieldPools,
	}
}
