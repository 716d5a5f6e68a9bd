package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropArea extracts a scan area from a frame. A nil area returns the whole
// frame as a copy. The area is clipped to the frame bounds; an area that
// does not overlap the frame is an error.
//
// When scale is positive and not 1 the crop is resized with Lanczos
// resampling, which keeps thumbnails of small parts legible.
func CropArea(img image.Image, area *image.Rectangle, scale float64) (*image.NRGBA, error) {
	bounds := img.Bounds()

	r := bounds
	if area != nil {
		r = area.Intersect(bounds)
		if r.Empty() {
			return nil, fmt.Errorf("crop region %v outside image bounds %v", *area, bounds)
		}
	}

	cropped := imaging.Crop(img, r)

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("scale %.3f collapses crop %v", scale, r)
		}
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	return cropped, nil
}
