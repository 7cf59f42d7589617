package cozytime

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CozyTime payload format (manufacturer data, 16 bytes minimum):
// [0:2] manufacturer id 0x51C9 little-endian, [2:6] device prefix CE CD 6C CE,
// [6] reserved, [7] packet counter, [8] marker 0x02, [9] temperature byte,
// [10] humidity byte, [11] marker 0x00, [12:16] unknown (checksum?).
const (
	ManufacturerID uint16 = 0x51C9
	FrameMinLen           = 16

	variableOffset = 6
	temperatureIdx = variableOffset + 3
	humidityIdx    = variableOffset + 4
	counterIdx     = variableOffset + 1
	marker0Idx     = variableOffset + 2
	marker1Idx     = variableOffset + 5

	marker0 = 0x02
	marker1 = 0x00

	temperatureOffset = 42
	humidityOffset    = 6
)

var devicePrefix = []byte{0xCE, 0xCD, 0x6C, 0xCE}

var (
	ErrFrameTooShort       = errors.New("frame too short")
	ErrWrongManufacturerID = errors.New("wrong manufacturer id")
	ErrWrongDevicePrefix   = errors.New("wrong device prefix")
)

// Frame is one manufacturer-data record as delivered by the scanner.
// CompanyID is the out-of-band identifier reported by the host stack; zero
// means the host did not supply one.
type Frame struct {
	CompanyID uint16
	Data      []byte
	RSSI      int8
}

// Fields are the values carried by a valid frame.
type Fields struct {
	Temperature float64
	Humidity    float64
	RSSI        int8
}

// ParseFrame validates f and extracts temperature and humidity.
// Rejections wrap ErrWrongManufacturerID, ErrFrameTooShort or ErrWrongDevicePrefix.
func ParseFrame(f Frame) (Fields, error) {
	if f.CompanyID != 0 && f.CompanyID != ManufacturerID {
		return Fields{}, fmt.Errorf("%w: 0x%04X", ErrWrongManufacturerID, f.CompanyID)
	}
	data := f.Data
	if len(data) < FrameMinLen {
		return Fields{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}
	if id := binary.LittleEndian.Uint16(data[0:2]); id != ManufacturerID {
		return Fields{}, fmt.Errorf("%w: 0x%04X", ErrWrongManufacturerID, id)
	}
	if !bytes.Equal(data[2:variableOffset], devicePrefix) {
		return Fields{}, fmt.Errorf("%w: % X", ErrWrongDevicePrefix, data[2:variableOffset])
	}

	return Fields{
		Temperature: temperatureFromByte(data[temperatureIdx]),
		Humidity:    humidityFromByte(data[humidityIdx]),
		RSSI:        f.RSSI,
	}, nil
}

func temperatureFromByte(b byte) float64 {
	return float64(int(b)+temperatureOffset) / 10.0
}

// Humidity is not clamped to 0..100.
func humidityFromByte(b byte) float64 {
	return float64(int(b) - humidityOffset)
}

// EncodeFrame builds a frame the decoder accepts. Temperature is rounded to
// one decimal; values that do not fit the single-byte fields are rejected.
func EncodeFrame(temperature, humidity float64, counter byte) ([]byte, error) {
	tb := math.Round(temperature*10) - temperatureOffset
	if math.IsNaN(tb) || tb < 0 || tb > math.MaxUint8 {
		return nil, fmt.Errorf("temperature %.1f out of range (4.2..29.7)", temperature)
	}
	hb := math.Round(humidity) + humidityOffset
	if math.IsNaN(hb) || hb < 0 || hb > math.MaxUint8 {
		return nil, fmt.Errorf("humidity %.0f out of range (-6..249)", humidity)
	}

	out := make([]byte, FrameMinLen)
	binary.LittleEndian.PutUint16(out[0:2], ManufacturerID)
	copy(out[2:variableOffset], devicePrefix)
	out[counterIdx] = counter
	out[marker0Idx] = marker0
	out[temperatureIdx] = byte(tb)
	out[humidityIdx] = byte(hb)
	out[marker1Idx] = marker1
	return out, nil
}

// RejectReason returns a stable label for a ParseFrame error, or "" for
// errors that are not frame rejections.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFrameTooShort):
		return "too_short"
	case errors.Is(err, ErrWrongManufacturerID):
		return "wrong_manufacturer_id"
	case errors.Is(err, ErrWrongDevicePrefix):
		return "wrong_prefix"
	default:
		return ""
	}
}
