package helpers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	AvatarSize    = 600
	AvatarQuality = 90
)

// ResizeToJPEG decodes an image, center-crops it to a square and scales it to
// size x size, writing a JPEG to w.
func ResizeToJPEG(r io.Reader, w io.Writer, size, quality int) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, squareCrop(src.Bounds()), draw.Over, nil)
	return jpeg.Encode(w, dst, &jpeg.Options{Quality: quality})
}

func squareCrop(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == h {
		return b
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
}

// AvatarFilename builds user-<16 hex>-<unix ms>.jpeg.
func AvatarFilename(now time.Time) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("user-%s-%d.jpeg", hex.EncodeToString(b), now.UnixMilli()), nil
}

// IsImageContentType accepts any image/* MIME type.
func IsImageContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "image/")
}
