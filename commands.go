package main

// Allow list of dongle commands clients may send through the HTTP API.
var allowedCommands = map[string]string{
	"BP+AG": "Start the controller data stream",
	"BP+AS": "Stop the controller data stream",

	"BL+gf": "Read left controller gyroscope calibration",
	"BR+gf": "Read right controller gyroscope calibration",
	"BL+mf": "Read left controller magnetometer calibration",
	"BR+mf": "Read right controller magnetometer calibration",

	"AT+AB": "Read dongle firmware version",
	"BP+AB": "Read controller firmware versions",
}
