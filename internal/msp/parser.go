package msp

type parseState int

const (
	stateIdle parseState = iota
	stateM
	stateDir
	stateSize
	stateCmd
	statePayload
	stateChecksum
)

// Parser decodes frames from a byte stream fed one byte at a time, so a
// frame may span any number of reads. It resynchronises on the next '$'
// after garbage or a bad checksum.
//
// Not safe for concurrent use.
type Parser struct {
	state   parseState
	dir     Direction
	size    int
	cmd     uint8
	payload []byte
	sum     byte

	skipped uint64
	errors  uint64
}

// Feed consumes one byte. It returns a Message and true when b completes a
// valid frame, and ErrChecksum when b completes a corrupt one.
func (p *Parser) Feed(b byte) (Message, bool, error) {
	switch p.state {
	case stateIdle:
		if b == '$' {
			p.state = stateM
		} else {
			p.skipped++
		}
	case stateM:
		if b == 'M' {
			p.state = stateDir
		} else {
			p.resync(b)
		}
	case stateDir:
		d := Direction(b)
		if !d.valid() {
			p.resync(b)
			break
		}
		p.dir = d
		p.state = stateSize
	case stateSize:
		p.size = int(b)
		p.sum = b
		p.state = stateCmd
	case stateCmd:
		p.cmd = b
		p.sum ^= b
		p.payload = make([]byte, 0, p.size)
		if p.size == 0 {
			p.state = stateChecksum
		} else {
			p.state = statePayload
		}
	case statePayload:
		p.payload = append(p.payload, b)
		p.sum ^= b
		if len(p.payload) == p.size {
			p.state = stateChecksum
		}
	case stateChecksum:
		p.state = stateIdle
		if b != p.sum {
			p.errors++
			return Message{}, false, ErrChecksum
		}
		return Message{Direction: p.dir, Command: p.cmd, Payload: p.payload}, true, nil
	}
	return Message{}, false, nil
}

// FeedAll feeds every byte of buf and returns the complete frames found.
// Corrupt frames are counted in Errors and skipped.
func (p *Parser) FeedAll(buf []byte) []Message {
	var out []Message
	for _, b := range buf {
		if m, ok, _ := p.Feed(b); ok {
			out = append(out, m)
		}
	}
	return out
}

// Pending reports whether a frame is partially received.
func (p *Parser) Pending() bool { return p.state != stateIdle }

// Skipped returns the count of bytes discarded outside of frames.
func (p *Parser) Skipped() uint64 { return p.skipped }

// Errors returns the count of frames rejected for a bad checksum.
func (p *Parser) Errors() uint64 { return p.errors }

func (p *Parser) Reset() {
	p.state = stateIdle
	p.payload = nil
}

func (p *Parser) resync(b byte) {
	p.skipped++
	if b == '$' {
		p.state = stateM
		return
	}
	p.state = stateIdle
}
