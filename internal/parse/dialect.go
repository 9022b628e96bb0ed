package parse

import "encoding/binary"

// Dialect identifies which radar frame layout a Parser decodes.
type Dialect int

const (
	// Tracking is the 40-byte multi-target dialect: header AA FF 03 00,
	// footer 55 CC, three {x,y,speed,resolution} slots.
	Tracking Dialect = iota
	// Presence is the 39-byte single-beam engineering dialect: header
	// F4 F3 F2 F1, footer F8 F7 F6 F5, gate energy arrays.
	Presence
)

// spec bundles the wire layout and decode logic for one dialect. Both
// dialects share the same WaitHeader/ReceiveData state machine shape in
// parser.go; only the layout and field semantics differ.
type spec struct {
	header  []byte
	footer  []byte
	frameLen int
	// extraValid performs dialect-specific checks beyond header/footer/length
	// (e.g. a fixed type byte, a fixed tail marker). The tracking-dialect
	// checksum word is neither read nor enforced; see DESIGN.md for the
	// rationale.
	extraValid func(buf []byte) bool
	decode     func(buf []byte, seq, timestampMS uint32) DetectionFrame
}

func specFor(d Dialect) spec {
	switch d {
	case Presence:
		return presenceSpec
	default:
		return trackingSpec
	}
}

// --- Tracking dialect -------------------------------------------------

// Tracking-dialect frame layout (40 bytes total):
//
//	[0:4)   header   AA FF 03 00
//	[4:6)   reserved (frame flag, unused)
//	[6:36)  3 target blocks of 10 bytes each:
//	          x(2) y(2) speed(2) resolution(2) reserved(2)
//	[36:38) checksum word (not read, not enforced — see DESIGN.md)
//	[38:40) footer   55 CC
const (
	trackingFrameLen    = 40
	trackingTargetStart = 6
	trackingTargetSize  = 10
	trackingChecksumOff = 36
	trackingFooterOff   = 38
)

var trackingSpec = spec{
	header:   []byte{0xAA, 0xFF, 0x03, 0x00},
	footer:   []byte{0x55, 0xCC},
	frameLen: trackingFrameLen,
	extraValid: func(buf []byte) bool {
		// Checksum word is present but its polynomial is under-specified
		// upstream; accept any value (documented Open Question decision).
		return true
	},
	decode: decodeTracking,
}

// decodeSignMagnitude interprets a little-endian 16-bit field where the high
// bit is the sign flag (1 = positive, 0 = negative) and the low 15 bits are
// the magnitude. 0x8000 (sign set, magnitude zero) is the empty-slot
// sentinel.
func decodeSignMagnitude(raw uint16) (value int16, sentinel bool) {
	magnitude := raw & 0x7FFF
	positive := raw&0x8000 != 0
	if magnitude == 0 && positive {
		return 0, true
	}
	if positive {
		return int16(magnitude), false
	}
	return -int16(magnitude), false
}

func decodeTracking(buf []byte, seq, timestampMS uint32) DetectionFrame {
	var f DetectionFrame
	f.Seq = seq
	f.TimestampMS = timestampMS

	for i := 0; i < MaxDetections; i++ {
		off := trackingTargetStart + i*trackingTargetSize
		block := buf[off : off+trackingTargetSize]

		xRaw := binary.LittleEndian.Uint16(block[0:2])
		yRaw := binary.LittleEndian.Uint16(block[2:4])
		speedRaw := binary.LittleEndian.Uint16(block[4:6])
		resolution := binary.LittleEndian.Uint16(block[6:8])

		x, sentinel := decodeSignMagnitude(xRaw)
		y, _ := decodeSignMagnitude(yRaw)
		speed, _ := decodeSignMagnitude(speedRaw)

		d := &f.Detections[i]
		if sentinel {
			*d = Detection{}
			continue
		}
		d.XMM = x
		d.YMM = y
		d.SpeedMMPS = speed
		d.Resolution = resolution
		d.Quality = qualityFromResolution(resolution)
		d.Valid = true
		f.Count++
	}
	return f
}

// qualityFromResolution derives a coarse 0-100 signal-quality score from the
// radar's resolution hint; finer resolution (smaller value) implies a
// stronger, better-resolved return.
func qualityFromResolution(resolution uint16) uint8 {
	if resolution == 0 {
		return 100
	}
	if resolution >= 100 {
		return 1
	}
	return uint8(100 - resolution)
}

// --- Presence dialect ---------------------------------------------------

// Presence-dialect frame layout (39 bytes total):
//
//	[0:4)   header        F4 F3 F2 F1
//	[4:6)   length u16 LE (informational)
//	[6]     type byte     (0x01 = engineering)
//	[7]     head marker   AA
//	[8]     target state  (bit0 = moving, bit1 = static)
//	[9:11)  moving distance mm, u16 LE
//	[11:20) moving gate energies, 9 bytes
//	[20:22) static distance mm, u16 LE
//	[22:31) static gate energies, 9 bytes
//	[31:33) reserved
//	[33:35) tail          55 00
//	[35:39) footer        F8 F7 F6 F5
const (
	presenceFrameLen        = 39
	presenceTypeOff         = 6
	presenceHeadOff         = 7
	presenceTargetStateOff  = 8
	presenceMovingDistOff   = 9
	presenceMovingGatesOff  = 11
	presenceStaticDistOff   = 20
	presenceStaticGatesOff  = 22
	presenceGateCount       = 9
	presenceEngineeringType = 0x01
	presenceHeadMarker      = 0xAA
)

var presenceSpec = spec{
	header:   []byte{0xF4, 0xF3, 0xF2, 0xF1},
	footer:   []byte{0xF8, 0xF7, 0xF6, 0xF5},
	frameLen: presenceFrameLen,
	extraValid: func(buf []byte) bool {
		if buf[presenceTypeOff] != presenceEngineeringType {
			return false
		}
		if buf[presenceHeadOff] != presenceHeadMarker {
			return false
		}
		return buf[33] == 0x55 && buf[34] == 0x00
	},
	decode: decodePresence,
}

const (
	targetStateMoving = 1 << 0
	targetStateStatic = 1 << 1
)

func decodePresence(buf []byte, seq, timestampMS uint32) DetectionFrame {
	var f DetectionFrame
	f.Seq = seq
	f.TimestampMS = timestampMS

	state := buf[presenceTargetStateOff]
	if state == 0 {
		return f
	}

	var distance uint16
	var gates []byte
	if state&targetStateMoving != 0 {
		distance = binary.LittleEndian.Uint16(buf[presenceMovingDistOff : presenceMovingDistOff+2])
		gates = buf[presenceMovingGatesOff : presenceMovingGatesOff+presenceGateCount]
	} else {
		distance = binary.LittleEndian.Uint16(buf[presenceStaticDistOff : presenceStaticDistOff+2])
		gates = buf[presenceStaticGatesOff : presenceStaticGatesOff+presenceGateCount]
	}

	peakGate, peakEnergy := 0, byte(0)
	for i, e := range gates {
		if e > peakEnergy {
			peakEnergy, peakGate = e, i
		}
	}

	d := &f.Detections[0]
	d.XMM = 0
	d.YMM = clampY(int32(distance))
	d.SpeedMMPS = 0 // engineering frames carry no velocity estimate
	d.Resolution = uint16(peakGate)
	d.Quality = peakEnergy
	d.Valid = true
	f.Count = 1
	return f
}

func clampY(y int32) int16 {
	if y > 6000 {
		return 6000
	}
	if y < 0 {
		return 0
	}
	return int16(y)
}
