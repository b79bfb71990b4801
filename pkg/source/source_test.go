package source

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestKind(t *testing.T) {
	tests := []struct {
		path string
		want MediaKind
	}{
		{"a.jpg", KindImage},
		{"a.JPEG", KindImage},
		{"dir/b.png", KindImage},
		{"c.bmp", KindImage},
		{"c.tiff", KindImage},
		{"v.mp4", KindVideo},
		{"v.AVI", KindVideo},
		{"v.mov", KindVideo},
		{"v.mkv", KindVideo},
		{"notes.txt", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tc := range tests {
		if got := Kind(tc.path); got != tc.want {
			t.Errorf("Kind(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestFrames_SequenceAndRewind(t *testing.T) {
	a := solid(2, 2, color.RGBA{R: 1, A: 255})
	b := solid(2, 2, color.RGBA{R: 2, A: 255})
	f := NewFrames(a, b)

	for i, want := range []image.Image{a, b} {
		got, err := f.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got != want {
			t.Errorf("Next() #%d returned wrong frame", i)
		}
	}
	if _, err := f.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}

	if err := f.Rewind(); err != nil {
		t.Fatal(err)
	}
	if f.Position() != 0 {
		t.Errorf("Position() = %d after Rewind", f.Position())
	}
	got, _ := f.Next()
	if got != a {
		t.Error("first frame after Rewind is not the first frame")
	}
}

func TestFrames_Closed(t *testing.T) {
	f := NewFrames(solid(1, 1, color.RGBA{}))
	f.Close()
	f.Close()
	if _, err := f.Next(); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() = %v, want ErrClosed", err)
	}
	if err := f.Rewind(); !errors.Is(err, ErrClosed) {
		t.Errorf("Rewind() = %v, want ErrClosed", err)
	}
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(file, solid(8, 6, color.RGBA{G: 200, A: 255})); err != nil {
		t.Fatal(err)
	}
	file.Close()

	img, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("bounds = %v, want 8x6", img.Bounds())
	}

	if _, err := LoadImage("clip.txt"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("LoadImage(txt) = %v, want ErrUnsupported", err)
	}
	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadImage(missing) = %v, want os.ErrNotExist", err)
	}
}
