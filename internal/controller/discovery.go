package controller

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DongleVID is the USB vendor ID the dongle enumerates with (9114
// decimal), as reported by the port enumerator in hex.
const DongleVID = "239A"

var ErrNoDongle = fmt.Errorf("controller: no dongle found")

// DonglePorts returns the serial port names of all attached dongles,
// filtered by vendor ID.
func DonglePorts() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("controller: enumerating ports: %w", err)
	}
	var ports []string
	for _, d := range details {
		if d.IsUSB && strings.EqualFold(d.VID, DongleVID) {
			ports = append(ports, d.Name)
		}
	}
	return ports, nil
}

// FindDongle returns the first attached dongle port, or ErrNoDongle.
func FindDongle() (string, error) {
	ports, err := DonglePorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrNoDongle
	}
	return ports[0], nil
}
