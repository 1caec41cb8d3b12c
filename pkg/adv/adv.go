// Package adv extracts vendor sub-fields from raw BLE advertisement
// payloads. An advertisement payload is a concatenation of AD
// structures, each encoded as [length][type][value...] where length
// counts the type byte plus the value bytes.
//
// Only the two AD types this project cares about are handled:
// manufacturer-specific data (0xFF) and 16-bit-UUID service data
// (0x16). Everything else is skipped.
package adv

import "encoding/binary"

// AD structure types handled by Parse.
const (
	TypeManufacturerData byte = 0xFF
	TypeServiceData16    byte = 0x16
)

// Extract holds the sub-fields pulled out of a single advertisement
// payload. The slices alias the input buffer; callers that retain the
// data past the buffer's lifetime must copy it.
type Extract struct {
	Manufacturer []byte
	Service      []byte

	HasManufacturer bool
	HasService      bool
}

// Parse walks the AD structures in data and extracts the manufacturer
// payload and, when the structure's leading little-endian UUID equals
// serviceUUID, the service-data payload following that UUID.
//
// Malformed input is never an error: a zero length byte ends the walk,
// a declared length running past the buffer discards the trailing
// structure, and anything else merely leaves the corresponding field
// absent. If the same type occurs more than once, the last one wins.
func Parse(data []byte, serviceUUID uint16) Extract {
	var out Extract

	i := 0
	for i < len(data) {
		length := int(data[i])
		if length == 0 {
			break
		}
		if i+1+length > len(data) {
			// Truncated trailing structure; keep what we have.
			break
		}

		typ := data[i+1]
		val := data[i+2 : i+1+length]

		switch {
		case typ == TypeManufacturerData && len(val) >= 2:
			out.Manufacturer = val
			out.HasManufacturer = true

		case typ == TypeServiceData16 && len(val) >= 2:
			if binary.LittleEndian.Uint16(val) == serviceUUID {
				out.Service = val[2:]
				out.HasService = true
			}
		}

		i += 1 + length
	}

	return out
}

// Append encodes one AD structure onto dst and returns the extended
// slice. Values too long to encode in the single length byte are
// skipped, mirroring what a radio would refuse to transmit.
func Append(dst []byte, typ byte, value []byte) []byte {
	if len(value)+1 > 0xFF {
		return dst
	}
	dst = append(dst, byte(len(value)+1), typ)
	return append(dst, value...)
}

// AppendServiceData16 encodes a 16-bit-UUID service-data structure,
// prefixing value with the little-endian uuid.
func AppendServiceData16(dst []byte, uuid uint16, value []byte) []byte {
	body := make([]byte, 2, 2+len(value))
	binary.LittleEndian.PutUint16(body, uuid)
	body = append(body, value...)
	return Append(dst, TypeServiceData16, body)
}
