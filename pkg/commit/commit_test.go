package commit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kmspipe/kmspipe-go/internal/kmstest"
	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

func newTestBuilder(t *testing.T) (*kmstest.Device, kmstest.SingleDisplay, *resource.Resources, *Builder) {
	t.Helper()
	dev, ids := kmstest.NewSingleDisplay()
	res := resource.New(dev, resource.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := res.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	b := New(res, Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return dev, ids, res, b
}

func TestPresentFrameSteadyState(t *testing.T) {
	dev, ids, _, b := newTestBuilder(t)

	err := b.PresentFrame(Frame{Display: 0, FBID: 77}, nil)
	if err != nil {
		t.Fatalf("PresentFrame failed: %v", err)
	}

	commit, ok := dev.LastCommit()
	if !ok {
		t.Fatal("no commit recorded")
	}
	// Without a pending modeset only the framebuffer property is written.
	if len(commit.Props) != 1 {
		t.Fatalf("got %d props, want 1", len(commit.Props))
	}
	p := commit.Props[0]
	if p.ObjectID != ids.Primary {
		t.Errorf("ObjectID = %d, want primary plane %d", p.ObjectID, ids.Primary)
	}
	if p.PropertyID != dev.PropertyID("FB_ID") {
		t.Errorf("PropertyID = %d, want FB_ID", p.PropertyID)
	}
	if p.Value != 77 {
		t.Errorf("Value = %d, want 77", p.Value)
	}
	if commit.Flags&kms.AllowModeset != 0 {
		t.Errorf("Flags = %#x, want allow-modeset clear", commit.Flags)
	}
}

func TestPresentFrameWithPendingModeset(t *testing.T) {
	dev, ids, res, b := newTestBuilder(t)

	conn, _ := res.ConnectorForDisplay(0)
	mode := conn.Modes()[0]
	blobID, err := res.CreatePropertyBlob(mode.Info().Marshal())
	if err != nil {
		t.Fatalf("CreatePropertyBlob failed: %v", err)
	}

	frame := Frame{
		Display: 0, FBID: 88,
		DstWidth: 1920, DstHeight: 1080,
		SrcWidth: 1920, SrcHeight: 1080,
	}
	if err := b.PresentFrame(frame, &Modeset{BlobID: blobID, Mode: mode}); err != nil {
		t.Fatalf("PresentFrame failed: %v", err)
	}

	commit, ok := dev.LastCommit()
	if !ok {
		t.Fatal("no commit recorded")
	}
	if commit.Flags&kms.AllowModeset == 0 {
		t.Errorf("Flags = %#x, want allow-modeset set", commit.Flags)
	}
	if len(commit.Props) != 12 {
		t.Fatalf("got %d props, want 12", len(commit.Props))
	}

	// Mode blob and attach first, geometry next, framebuffer last.
	wantOrder := []struct {
		object uint32
		name   string
		value  uint64
	}{
		{ids.Crtc, "MODE_ID", uint64(blobID)},
		{ids.Connector, "CRTC_ID", uint64(ids.Crtc)},
		{ids.Primary, "CRTC_ID", uint64(ids.Crtc)},
		{ids.Primary, "CRTC_X", 0},
		{ids.Primary, "CRTC_Y", 0},
		{ids.Primary, "CRTC_W", 1920},
		{ids.Primary, "CRTC_H", 1080},
		{ids.Primary, "SRC_X", 0},
		{ids.Primary, "SRC_Y", 0},
		{ids.Primary, "SRC_W", 1920 << 16},
		{ids.Primary, "SRC_H", 1080 << 16},
		{ids.Primary, "FB_ID", 88},
	}
	for i, want := range wantOrder {
		got := commit.Props[i]
		if got.ObjectID != want.object {
			t.Errorf("prop %d object = %d, want %d (%s)", i, got.ObjectID, want.object, want.name)
		}
		if got.PropertyID != dev.PropertyID(want.name) {
			t.Errorf("prop %d property = %d, want %s", i, got.PropertyID, want.name)
		}
		if got.Value != want.value {
			t.Errorf("prop %d (%s) value = %d, want %d", i, want.name, got.Value, want.value)
		}
	}
}

func TestPresentFrameCommitFailure(t *testing.T) {
	dev, _, _, b := newTestBuilder(t)

	commitErr := errors.New("device busy")
	dev.Hooks.OnCommit = func([]kms.PropertyValue, kms.CommitFlags) error { return commitErr }

	err := b.PresentFrame(Frame{Display: 0, FBID: 1}, nil)
	if !errors.Is(err, commitErr) {
		t.Fatalf("error = %v, want %v", err, commitErr)
	}
}

func TestPresentFrameUnknownDisplay(t *testing.T) {
	_, _, _, b := newTestBuilder(t)

	err := b.PresentFrame(Frame{Display: 5, FBID: 1}, nil)
	if !errors.Is(err, resource.ErrNoSuchDisplay) {
		t.Fatalf("error = %v, want ErrNoSuchDisplay", err)
	}
}

func TestPresentFrameNegativeDestination(t *testing.T) {
	dev, _, res, b := newTestBuilder(t)

	conn, _ := res.ConnectorForDisplay(0)
	mode := conn.Modes()[0]
	blobID, _ := res.CreatePropertyBlob(mode.Info().Marshal())

	frame := Frame{
		Display: 0, FBID: 3,
		DstX: -10, DstY: -20,
		DstWidth: 100, DstHeight: 100,
		SrcWidth: 100, SrcHeight: 100,
	}
	if err := b.PresentFrame(frame, &Modeset{BlobID: blobID, Mode: mode}); err != nil {
		t.Fatalf("PresentFrame failed: %v", err)
	}

	commit, _ := dev.LastCommit()
	// Negative destination offsets are sign-extended into the u64 value.
	negX, negY := int64(-10), int64(-20)
	if commit.Props[3].Value != uint64(negX) {
		t.Errorf("CRTC_X = %#x, want sign-extended -10", commit.Props[3].Value)
	}
	if commit.Props[4].Value != uint64(negY) {
		t.Errorf("CRTC_Y = %#x, want sign-extended -20", commit.Props[4].Value)
	}
}
