package admission

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Measurer measures an image without trusting anything the client declared.
type Measurer interface {
	Measure(data []byte) (width, height int, err error)
}

// MeasurerFunc adapts a function to the Measurer interface.
type MeasurerFunc func(data []byte) (int, int, error)

func (f MeasurerFunc) Measure(data []byte) (int, int, error) {
	return f(data)
}

// DecodeConfigMeasurer reads only the image header (JPEG, PNG or WebP) to learn its size.
type DecodeConfigMeasurer struct{}

func (DecodeConfigMeasurer) Measure(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}
