package codec

import (
	"sync"

	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// Tag marks what a converter queue entry holds
type Tag uint8

const (
	TagHeader Tag = iota
	TagData
	TagEOT
	// TagNone means no complete frame is available yet
	TagNone Tag = 0xFF
)

const (
	// DMRFramePer is the time between DMR voice bursts
	DMRFramePer = 55 // milliseconds

	// YSFFramePer is the time between YSF voice frames
	YSFFramePer = 90 // milliseconds

	// BufferSize is the depth of each direction's queue in AMBE frames
	BufferSize = 1000

	// VCHBytes is the size of the five contiguous voice channels GetYSF fills
	VCHBytes = ysf.VCHCount * ysf.VCHLength

	ambePerDMR = 3
	ambePerYSF = ysf.VCHCount
)

// dmrSilence is one AMBE silence frame in 9 byte mini frame layout
var dmrSilence = []byte{0xB9, 0xE8, 0x81, 0x52, 0x61, 0x73, 0x00, 0x2A, 0x6B}

// ysfSilence is the same silence frame as a YSF voice channel
var ysfSilence = func() []byte {
	a, b, c := readAMBE(dmrSilence, 0)
	return dmrToVCH(a, b, c)
}()

// SilenceBurst returns a 33 byte DMR voice burst of three AMBE silence
// frames with the sync/embedded field clear
func SilenceBurst() []byte {
	burst := make([]byte, 33)
	a, b, c := readAMBE(dmrSilence, 0)
	for k := 0; k < ambePerDMR; k++ {
		writeAMBE(burst, k, a, b, c)
	}
	return burst
}

// Converter transcodes voice between DMR bursts and YSF VD mode 2 frames.
// Each direction is a queue of AMBE frames with header and EOT markers;
// producers push whole frames of one mode and consumers pull whole frames of
// the other.
type Converter struct {
	// DMR -> YSF
	ysfBuffer *ringBuffer
	ysfN      uint

	// YSF -> DMR
	dmrBuffer *ringBuffer
	dmrN      uint

	mu sync.Mutex
}

// NewConverter creates a new codec converter
func NewConverter() *Converter {
	return &Converter{
		ysfBuffer: newRingBuffer(BufferSize),
		dmrBuffer: newRingBuffer(BufferSize),
	}
}

// Reset drops everything queued in both directions
func (c *Converter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ysfBuffer.reset()
	c.dmrBuffer.reset()
	c.ysfN = 0
	c.dmrN = 0
}

// PutDMRHeader starts a DMR to YSF stream
func (c *Converter) PutDMRHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ysfBuffer.add(TagHeader, nil)
	c.ysfN = 0
}

// PutDMR queues the three AMBE frames of a 33 byte voice burst
func (c *Converter) PutDMR(burst []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := 0; k < ambePerDMR; k++ {
		a, b, cc := readAMBE(burst, k)
		c.ysfBuffer.add(TagData, dmrToVCH(a, b, cc))
		c.ysfN++
	}
}

// PutDMREOT ends a DMR to YSF stream, padding with silence to a whole YSF
// frame
func (c *Converter) PutDMREOT() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.ysfN%ambePerYSF != 0 {
		c.ysfBuffer.add(TagData, ysfSilence)
		c.ysfN++
	}
	c.ysfBuffer.add(TagEOT, nil)
}

// PutDummyDMR queues one burst worth of silence for lost DMR frames
func (c *Converter) PutDummyDMR() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := 0; k < ambePerDMR; k++ {
		c.ysfBuffer.add(TagData, ysfSilence)
		c.ysfN++
	}
}

// PutVCH queues the five voice channels of a VD mode 2 payload received
// from a YSF network, for paced playback to the repeater
func (c *Converter) PutVCH(payload []byte) {
	if len(payload) < ysf.PayloadLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < ambePerYSF; i++ {
		off := ysf.VCHOffset(i)
		c.ysfBuffer.add(TagData, payload[off:off+ysf.VCHLength])
		c.ysfN++
	}
}

// GetYSF pops the next YSF unit. For TagData vch receives the five voice
// channels back to back (VCHBytes long), ready for ysf.WriteVCH.
func (c *Converter) GetYSF(vch []byte) Tag {
	if len(vch) < VCHBytes {
		return TagNone
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ysfBuffer.take(vch, ambePerYSF, func(out []byte, i int, data []byte) {
		copy(out[i*ysf.VCHLength:(i+1)*ysf.VCHLength], data)
	})
}

// HasYSF reports whether GetYSF would return something
func (c *Converter) HasYSF() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ysfBuffer.ready(ambePerYSF)
}

// PutYSFHeader starts a YSF to DMR stream
func (c *Converter) PutYSFHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dmrBuffer.add(TagHeader, nil)
	c.dmrN = 0
}

// PutYSF queues the five voice channels of a 120 byte VD mode 2 payload
func (c *Converter) PutYSF(payload []byte) {
	if len(payload) < ysf.PayloadLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < ambePerYSF; i++ {
		a, b, cc := vchToDMR(payload, uint(ysf.VCHOffset(i))*8)
		mini := make([]byte, 9)
		writeAMBE(mini, 0, a, b, cc)
		c.dmrBuffer.add(TagData, mini)
		c.dmrN++
	}
}

// PutYSFEOT ends a YSF to DMR stream, padding with silence to a whole DMR
// burst
func (c *Converter) PutYSFEOT() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.dmrN%ambePerDMR != 0 {
		c.dmrBuffer.add(TagData, dmrSilence)
		c.dmrN++
	}
	c.dmrBuffer.add(TagEOT, nil)
}

// PutDummyYSF queues one YSF frame worth of silence for lost YSF frames
func (c *Converter) PutDummyYSF() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < ambePerYSF; i++ {
		c.dmrBuffer.add(TagData, dmrSilence)
		c.dmrN++
	}
}

// GetDMR pops the next DMR unit. For TagData burst receives the three AMBE
// frames in a 33 byte burst; the sync/embedded field is left clear.
func (c *Converter) GetDMR(burst []byte) Tag {
	if len(burst) < 33 {
		return TagNone
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dmrBuffer.take(burst, ambePerDMR, func(out []byte, k int, data []byte) {
		if k == 0 {
			for i := range out {
				out[i] = 0
			}
		}
		a, b, cc := readAMBE(data, 0)
		writeAMBE(out, k, a, b, cc)
	})
}

// HasDMR reports whether GetDMR would return something
func (c *Converter) HasDMR() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dmrBuffer.ready(ambePerDMR)
}

type bufferEntry struct {
	tag  Tag
	data []byte
}

// ringBuffer is a bounded FIFO that drops the oldest entry when full
type ringBuffer struct {
	entries []bufferEntry
	head    int
	count   int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{entries: make([]bufferEntry, size)}
}

func (rb *ringBuffer) add(tag Tag, data []byte) {
	var dataCopy []byte
	if data != nil {
		dataCopy = append([]byte(nil), data...)
	}
	if rb.count == len(rb.entries) {
		rb.head = (rb.head + 1) % len(rb.entries)
		rb.count--
	}
	rb.entries[(rb.head+rb.count)%len(rb.entries)] = bufferEntry{tag: tag, data: dataCopy}
	rb.count++
}

func (rb *ringBuffer) peek(i int) bufferEntry {
	return rb.entries[(rb.head+i)%len(rb.entries)]
}

func (rb *ringBuffer) pop() bufferEntry {
	e := rb.peek(0)
	rb.entries[rb.head] = bufferEntry{}
	rb.head = (rb.head + 1) % len(rb.entries)
	rb.count--
	return e
}

func (rb *ringBuffer) reset() {
	for i := range rb.entries {
		rb.entries[i] = bufferEntry{}
	}
	rb.head = 0
	rb.count = 0
}

// ready reports whether a marker or n data entries are at the head
func (rb *ringBuffer) ready(n int) bool {
	if rb.count == 0 {
		return false
	}
	if rb.peek(0).tag != TagData {
		return true
	}
	for i := 0; i < n; i++ {
		if i >= rb.count {
			return false
		}
		if rb.peek(i).tag != TagData {
			// a marker cut the frame short, it is flushed with padding
			return true
		}
	}
	return true
}

// take pops a marker, or n data entries handed to fill in order. A frame cut
// short by a marker repeats its last voice frame. Nothing is consumed until
// a whole frame or a marker is at the head.
func (rb *ringBuffer) take(out []byte, n int, fill func(out []byte, i int, data []byte)) Tag {
	if !rb.ready(n) {
		return TagNone
	}
	if tag := rb.peek(0).tag; tag != TagData {
		rb.pop()
		return tag
	}
	var last []byte
	for i := 0; i < n; i++ {
		if rb.count > 0 && rb.peek(0).tag == TagData {
			last = rb.pop().data
		}
		fill(out, i, last)
	}
	return TagData
}
