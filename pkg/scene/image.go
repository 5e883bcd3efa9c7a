package scene

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/qmuntal/gltf"
)

// ImageInfo describes an image embedded in a buffer view.
type ImageInfo struct {
	Index    int
	Name     string
	MimeType string
	Format   string // decoder name, e.g. "png"
	Width    int
	Height   int
	Bytes    int
}

// EmbeddedImages decodes the header of every image stored in a buffer view.
// Images referenced by URI are skipped. Buffers must be loaded.
func EmbeddedImages(doc *gltf.Document) ([]ImageInfo, error) {
	var out []ImageInfo
	for i, img := range doc.Images {
		if img.BufferView == nil {
			continue
		}
		data, err := ViewBytes(doc, *img.BufferView)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("image %d (%s): %w", i, img.MimeType, err)
		}
		out = append(out, ImageInfo{
			Index:    i,
			Name:     img.Name,
			MimeType: img.MimeType,
			Format:   format,
			Width:    cfg.Width,
			Height:   cfg.Height,
			Bytes:    len(data),
		})
	}
	return out, nil
}
