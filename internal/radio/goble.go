package radio

import (
	"context"
	"encoding/binary"
	"net"

	"github.com/go-ble/ble"
	"github.com/srg/swbot/pkg/adv"
)

// bleScanner wraps ble.Device to implement the Scanner interface.
type bleScanner struct {
	dev ble.Device
}

func newBLEScanner() (Scanner, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, err
	}
	return &bleScanner{dev: dev}, nil
}

// Scan adapts the raw ble.Device.Scan handler to Report.
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, h func(Report)) error {
	return s.dev.Scan(ctx, allowDup, func(a ble.Advertisement) {
		if rep, ok := reportFromAdvertisement(a); ok {
			h(rep)
		}
	})
}

// rawDataAdvertisement is the optional accessor some go-ble platforms
// expose for the unparsed advertisement payload.
type rawDataAdvertisement interface {
	Data() []byte
}

// reportFromAdvertisement converts a platform advertisement into a raw
// Report. When the platform hides the raw AD bytes behind its portable
// accessors, the structures are re-encoded so both paths feed the same
// parser.
func reportFromAdvertisement(a ble.Advertisement) (Report, bool) {
	var rep Report

	hw, err := net.ParseMAC(a.Addr().String())
	if err != nil || len(hw) != 6 {
		return rep, false
	}
	copy(rep.Addr[:], hw)
	rep.RSSI = clampRSSI(a.RSSI())

	if raw, ok := a.(rawDataAdvertisement); ok {
		rep.Data = raw.Data()
		return rep, true
	}

	var buf []byte
	if md := a.ManufacturerData(); len(md) > 0 {
		buf = adv.Append(buf, adv.TypeManufacturerData, md)
	}
	for _, sd := range a.ServiceData() {
		if len(sd.UUID) == 2 {
			buf = adv.AppendServiceData16(buf, binary.LittleEndian.Uint16(sd.UUID), sd.Data)
		}
	}
	rep.Data = buf
	return rep, true
}

func clampRSSI(rssi int) int8 {
	switch {
	case rssi < -128:
		return -128
	case rssi > 127:
		return 127
	default:
		return int8(rssi)
	}
}
