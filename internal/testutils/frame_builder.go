package testutils

import (
	"encoding/binary"

	"github.com/srg/swbot/pkg/adv"
)

// FrameBuilder builds raw advertisement payloads for tests. It
// provides a fluent API over the [length][type][value] AD-structure
// encoding so test cases read as intent rather than byte soup.
type FrameBuilder struct {
	buf []byte
}

// NewFrameBuilder creates an empty advertisement frame builder.
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{}
}

// WithStructure appends one AD structure of the given type.
func (b *FrameBuilder) WithStructure(typ byte, value ...byte) *FrameBuilder {
	b.buf = adv.Append(b.buf, typ, value)
	return b
}

// WithManufacturerData appends a manufacturer-specific structure whose
// value starts with the little-endian company identifier.
func (b *FrameBuilder) WithManufacturerData(companyID uint16, payload ...byte) *FrameBuilder {
	value := make([]byte, 2, 2+len(payload))
	binary.LittleEndian.PutUint16(value, companyID)
	value = append(value, payload...)
	return b.WithStructure(adv.TypeManufacturerData, value...)
}

// WithServiceData16 appends a 16-bit-UUID service-data structure.
func (b *FrameBuilder) WithServiceData16(uuid uint16, payload ...byte) *FrameBuilder {
	b.buf = adv.AppendServiceData16(b.buf, uuid, payload)
	return b
}

// WithRaw appends bytes verbatim, for deliberately malformed frames.
func (b *FrameBuilder) WithRaw(raw ...byte) *FrameBuilder {
	b.buf = append(b.buf, raw...)
	return b
}

// Build returns the accumulated frame.
func (b *FrameBuilder) Build() []byte {
	return b.buf
}
