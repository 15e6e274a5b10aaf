package window

import (
	"context"
	"errors"
	"testing"
)

func TestOptions(t *testing.T) {
	w := newEngineWindow(
		WithTitle("sky"),
		WithSize(800, 0),
		WithSizeLimits(640, 0, 0, 1200),
		WithResizable(false),
	)
	if w.title != "sky" || w.resizable {
		t.Fatalf("title %q resizable %v", w.title, w.resizable)
	}
	if w.width != 800 || w.height != 720 {
		t.Fatalf("expected 800x720; got %dx%d", w.width, w.height)
	}
	want := sizeLimits{minWidth: 640, minHeight: 200, maxWidth: 3840, maxHeight: 1200}
	if w.limits != want {
		t.Fatalf("limits %+v, want %+v", w.limits, want)
	}
}

func TestSetSize(t *testing.T) {
	w := newEngineWindow()
	var calls int
	w.SetResizeCallback(func(width, height int) {
		calls++
		if width != 1024 || height != 768 {
			t.Fatalf("resize callback got %dx%d", width, height)
		}
	})

	w.setSize(1024, 768)
	w.setSize(1024, 768)
	if calls != 1 {
		t.Fatalf("expected one resize notification; got %d", calls)
	}
	if w.Width() != 1024 || w.Height() != 768 {
		t.Fatalf("size %dx%d", w.Width(), w.Height())
	}
}

func TestDragState(t *testing.T) {
	var d dragState
	if _, _, ok := d.move(5, 5); ok {
		t.Fatal("expected no drag before press")
	}

	d.press(10, 20)
	specs := []struct {
		x, y   float64
		dx, dy float32
	}{
		{12, 20, 2, 0},
		{12, 15, 0, -5},
		{9, 16, -3, 1},
	}
	for i, spec := range specs {
		dx, dy, ok := d.move(spec.x, spec.y)
		if !ok || dx != spec.dx || dy != spec.dy {
			t.Fatalf("[spec %d] got (%v, %v, %v), want (%v, %v)", i, dx, dy, ok, spec.dx, spec.dy)
		}
	}

	d.release()
	if _, _, ok := d.move(0, 0); ok {
		t.Fatal("expected no drag after release")
	}
}

func TestUninitialisedWindow(t *testing.T) {
	w := newEngineWindow()
	if w.IsRunning() {
		t.Fatal("expected a window without a platform window to be stopped")
	}
	if w.SurfaceDescriptor() != nil {
		t.Fatal("expected no surface descriptor")
	}
	if err := w.Close(); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized; got %v", err)
	}
	w.SetTitle("still fine")

	updates := 0
	w.SetUpdateCallback(func() { updates++ })
	w.ProcessMessages(context.Background())
	if updates != 0 {
		t.Fatalf("expected the message loop to exit at once; ran %d updates", updates)
	}
}
