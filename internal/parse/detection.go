package parse

// MaxDetections is the hardware ceiling on targets reported per frame.
const MaxDetections = 3

// SentinelMagnitude marks an empty tracking-dialect target slot: sign bit set,
// magnitude zero.
const SentinelMagnitude = 0

// Detection is a single target observation within one frame.
type Detection struct {
	XMM        int16 // millimetres, +X right of sensor
	YMM        int16 // millimetres, +Y away from sensor
	SpeedMMPS  int16 // signed mm/s, negative = approaching
	Resolution uint16
	Quality    uint8 // 0-100 derived signal-quality score
	Valid      bool
}

// DetectionFrame is an ordered, fixed-capacity sequence of detections for one
// tick. Ownership transfers to the tracker; its lifetime is one tick.
type DetectionFrame struct {
	Detections  [MaxDetections]Detection
	Count       int
	TimestampMS uint32
	Seq         uint32
}
