package cozytime

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestNewDecoder_NoData(t *testing.T) {
	d := NewDecoder()
	if d.HasValidData() {
		t.Error("HasValidData() = true before any decode")
	}
	if !math.IsNaN(d.Temperature()) {
		t.Errorf("Temperature() = %v, want NaN", d.Temperature())
	}
	if !math.IsNaN(d.Humidity()) {
		t.Errorf("Humidity() = %v, want NaN", d.Humidity())
	}
	if d.RSSI() != 0 {
		t.Errorf("RSSI() = %d, want 0", d.RSSI())
	}
}

func TestDecoder_DecodeStoresReading(t *testing.T) {
	d := NewDecoder()
	got, err := d.Decode(Frame{CompanyID: ManufacturerID, Data: validFrame(0x32, 0x32), RSSI: -58})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := Fields{Temperature: 9.2, Humidity: 44, RSSI: -58}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}

	snap := d.Snapshot()
	if !snap.Valid || snap.Temperature != 9.2 || snap.Humidity != 44 || snap.RSSI != -58 {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if !d.HasValidData() {
		t.Error("HasValidData() = false after a successful decode")
	}
}

func TestDecoder_Idempotent(t *testing.T) {
	d := NewDecoder()
	f := Frame{Data: validFrame(0x80, 0x40), RSSI: -71}

	first, err := d.Decode(f)
	if err != nil {
		t.Fatalf("first Decode() error = %v", err)
	}
	if !d.HasValidData() {
		t.Fatal("HasValidData() = false after first decode")
	}
	second, err := d.Decode(f)
	if err != nil {
		t.Fatalf("second Decode() error = %v", err)
	}
	if first != second {
		t.Errorf("Decode() not idempotent: %+v != %+v", first, second)
	}
	if !d.HasValidData() {
		t.Fatal("HasValidData() = false after second decode")
	}
}

func TestDecoder_RejectKeepsPreviousReading(t *testing.T) {
	d := NewDecoder()
	if _, err := d.Decode(Frame{Data: validFrame(0x32, 0x32), RSSI: -50}); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	before := d.Snapshot()

	badPrefix := validFrame(0x00, 0x00)
	badPrefix[3] = 0x00
	rejects := []struct {
		frame Frame
		want  error
	}{
		{Frame{Data: []byte{0xC9, 0x51}, RSSI: -90}, ErrFrameTooShort},
		{Frame{CompanyID: 0x0006, Data: validFrame(0x00, 0x00), RSSI: -90}, ErrWrongManufacturerID},
		{Frame{Data: badPrefix, RSSI: -90}, ErrWrongDevicePrefix},
	}
	for _, r := range rejects {
		if _, err := d.Decode(r.frame); !errors.Is(err, r.want) {
			t.Fatalf("Decode() error = %v, want %v", err, r.want)
		}
		if got := d.Snapshot(); got != before {
			t.Fatalf("reading changed after rejection: %+v, want %+v", got, before)
		}
	}
	if d.Temperature() != 9.2 || d.Humidity() != 44 || d.RSSI() != -50 {
		t.Errorf("accessors = %v/%v/%d, want 9.2/44/-50", d.Temperature(), d.Humidity(), d.RSSI())
	}
}

func TestDecoder_RejectBeforeFirstSuccess(t *testing.T) {
	d := NewDecoder()
	if _, err := d.Decode(Frame{Data: nil}); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("Decode() error = %v, want ErrFrameTooShort", err)
	}
	if d.HasValidData() {
		t.Error("HasValidData() = true after a rejection")
	}
	if !math.IsNaN(d.Temperature()) {
		t.Errorf("Temperature() = %v, want NaN", d.Temperature())
	}
}

// Readers never see temperature from one frame paired with humidity from another.
func TestDecoder_SnapshotConsistent(t *testing.T) {
	d := NewDecoder()
	frames := []Frame{
		{Data: validFrame(0x00, 0x00), RSSI: -40},
		{Data: validFrame(0xFF, 0xFF), RSSI: -90},
	}
	valid := map[Reading]bool{}
	for _, f := range frames {
		fields, err := ParseFrame(f)
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		valid[Reading{Temperature: fields.Temperature, Humidity: fields.Humidity, RSSI: fields.RSSI, Valid: true}] = true
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = d.Decode(frames[i%2])
		}
	}()

	for i := 0; i < 10000; i++ {
		snap := d.Snapshot()
		if !snap.Valid {
			continue
		}
		if !valid[snap] {
			close(stop)
			wg.Wait()
			t.Fatalf("torn snapshot %+v", snap)
		}
	}
	close(stop)
	wg.Wait()
}
