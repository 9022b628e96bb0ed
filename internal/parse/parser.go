// Package parse turns a noisy UART byte stream from either of two radar
// dialects into validated DetectionFrame values. It never blocks, never
// allocates after construction, and resyncs deterministically after
// corruption — see the WaitHeader/ReceiveData state machine in Feed.
package parse

// maxFrameLen is the largest of the two dialect frame sizes; it bounds the
// Parser's internal scratch buffer so Feed never allocates.
const maxFrameLen = 40

type parserState int

const (
	waitHeader parserState = iota
	receiveData
)

// Snapshot is a read-only view of a Parser's counters, suitable for
// introspection or logging by the embedding host.
type Snapshot struct {
	FramesParsed  uint32
	FramesInvalid uint32
	SyncLost      uint32
	FrameSeq      uint32
}

// Parser is a single-dialect frame decoder. It holds no reference to any
// frame once Feed returns it, and it never blocks waiting for more bytes.
type Parser struct {
	spec  spec
	state parserState

	headerPos int
	buf       [maxFrameLen]byte
	bufLen    int

	framesParsed  uint32
	framesInvalid uint32
	syncLost      uint32
	seq           uint32
}

// NewParser constructs a Parser bound to one wire dialect.
func NewParser(d Dialect) *Parser {
	return &Parser{spec: specFor(d)}
}

// Feed consumes a prefix of data and returns how many bytes it consumed. If
// a complete, valid frame was assembled during that prefix, ok is true and
// frame holds it; the caller should pass nowMS as the current monotonic
// millisecond clock reading for the emitted frame's timestamp. Invalid
// frames are dropped silently (counted, not returned) and scanning
// continues within the same call. Callers loop, feeding the remainder of
// data (if consumed < len(data)) or their next chunk.
func (p *Parser) Feed(data []byte, nowMS uint32) (consumed int, frame DetectionFrame, ok bool) {
	header := p.spec.header

	for i, b := range data {
		switch p.state {
		case waitHeader:
			if b == header[p.headerPos] {
				p.buf[p.headerPos] = b
				p.headerPos++
				if p.headerPos == len(header) {
					p.bufLen = p.headerPos
					p.state = receiveData
				}
				continue
			}
			// Mismatch: restart the match without discarding b — retest it
			// against header[0] so a false header prefix never costs the
			// next real prefix byte.
			p.headerPos = 0
			if b == header[0] {
				p.buf[0] = b
				p.headerPos = 1
				if p.headerPos == len(header) {
					p.bufLen = p.headerPos
					p.state = receiveData
				}
			}

		case receiveData:
			p.buf[p.bufLen] = b
			p.bufLen++
			if p.bufLen < p.spec.frameLen {
				continue
			}

			full := p.buf[:p.bufLen]
			if p.validate(full) {
				frame = p.spec.decode(full, p.seq, nowMS)
				p.seq++
				p.framesParsed++
				p.reset()
				return i + 1, frame, true
			}

			p.framesInvalid++
			p.syncLost++
			p.reset()
		}
	}
	return len(data), DetectionFrame{}, false
}

func (p *Parser) reset() {
	p.state = waitHeader
	p.headerPos = 0
	p.bufLen = 0
}

func (p *Parser) validate(full []byte) bool {
	footer := p.spec.footer
	tail := full[len(full)-len(footer):]
	for i, want := range footer {
		if tail[i] != want {
			return false
		}
	}
	if p.spec.extraValid != nil && !p.spec.extraValid(full) {
		return false
	}
	return true
}

// Snapshot returns the Parser's current counters.
func (p *Parser) Snapshot() Snapshot {
	return Snapshot{
		FramesParsed:  p.framesParsed,
		FramesInvalid: p.framesInvalid,
		SyncLost:      p.syncLost,
		FrameSeq:      p.seq,
	}
}
