// Package imaging derives reduced image variants for gallery views.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
)

// Resizer produces bounded thumbnails. The zero bounds default to 300x300.
type Resizer struct {
	MaxWidth  uint
	MaxHeight uint
	Quality   int
}

func NewResizer() *Resizer {
	return &Resizer{MaxWidth: 300, MaxHeight: 300, Quality: 85}
}

// Thumbnail decodes data, scales it down preserving aspect ratio and
// re-encodes in the source format. Formats other than JPEG and PNG are
// rejected; the caller treats that as "no thumbnail", not a failure of the
// upload itself.
func (r *Resizer) Thumbnail(data []byte, contentType string) ([]byte, error) {
	ct := strings.ToLower(contentType)
	if !strings.Contains(ct, "jpeg") && !strings.Contains(ct, "jpg") && !strings.Contains(ct, "png") {
		return nil, fmt.Errorf("unsupported image type %q", contentType)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	w, h := r.MaxWidth, r.MaxHeight
	if w == 0 {
		w = 300
	}
	if h == 0 {
		h = 300
	}
	thumb := resize.Thumbnail(w, h, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, thumb)
	default:
		q := r.Quality
		if q == 0 {
			q = 85
		}
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: q})
	}
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
