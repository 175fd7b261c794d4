package kms

import (
	"testing"
)

func testMode1080p() ModeInfo {
	return ModeInfo{
		Clock:      148500,
		HDisplay:   1920,
		HSyncStart: 2008,
		HSyncEnd:   2052,
		HTotal:     2200,
		VDisplay:   1080,
		VSyncStart: 1084,
		VSyncEnd:   1089,
		VTotal:     1125,
		VRefresh:   60,
		Type:       ModeTypeDriver | ModeTypePreferred,
		Name:       "1920x1080",
	}
}

func TestModeInfoMarshalRoundTrip(t *testing.T) {
	in := testMode1080p()
	buf := in.Marshal()
	if len(buf) != modeInfoSize {
		t.Fatalf("Marshal length = %d, want %d", len(buf), modeInfoSize)
	}

	out, err := UnmarshalModeInfo(buf)
	if err != nil {
		t.Fatalf("UnmarshalModeInfo: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestUnmarshalModeInfoShortBuffer(t *testing.T) {
	if _, err := UnmarshalModeInfo(make([]byte, 10)); err == nil {
		t.Error("UnmarshalModeInfo accepted a short buffer")
	}
}

func TestModeInfoRefresh(t *testing.T) {
	m := testMode1080p()
	if got := m.Refresh(); got != 60 {
		t.Errorf("Refresh = %v, want 60 (VRefresh set)", got)
	}

	m.VRefresh = 0
	got := m.Refresh()
	if got < 59.9 || got > 60.1 {
		t.Errorf("computed Refresh = %v, want ~60", got)
	}

	m.HTotal = 0
	if got := m.Refresh(); got != 0 {
		t.Errorf("Refresh with zero totals = %v, want 0", got)
	}
}

func TestModeInfoSameTimings(t *testing.T) {
	a := testMode1080p()
	b := a

	// The preferred bit moving must not make timings differ.
	b.Type = ModeTypeDriver
	b.Name = "renamed"
	if !a.SameTimings(b) {
		t.Error("SameTimings = false for identical timings with different type/name")
	}

	b.Clock = 74250
	if a.SameTimings(b) {
		t.Error("SameTimings = true for different clocks")
	}
}

func TestModeInfoPreferred(t *testing.T) {
	m := testMode1080p()
	if !m.Preferred() {
		t.Error("Preferred = false, want true")
	}
	m.Type = ModeTypeDriver
	if m.Preferred() {
		t.Error("Preferred = true, want false")
	}
}

func TestPixelFormatString(t *testing.T) {
	if got := FormatXRGB8888.String(); got != "XR24" {
		t.Errorf("FormatXRGB8888.String() = %q, want %q", got, "XR24")
	}
}
