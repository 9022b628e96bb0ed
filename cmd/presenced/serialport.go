package main

import "go.bug.st/serial"

// openRadarPort opens the UART device node the radar speaks on. Framing and
// decoding are entirely the core's job (internal/parse); this is just the
// byte source collaborator spec.md §6 describes.
func openRadarPort(portName string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(portName, mode)
}
