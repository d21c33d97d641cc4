// Package images turns downloaded avatars into the fixed set of stored sizes.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// JPEGQuality is used for every non-PNG rendition.
const JPEGQuality = 80

// Tier is one stored rendition. A zero Bound keeps the original dimensions.
type Tier struct {
	Name  string
	Bound int
}

// Tiers lists the renditions written for every avatar, smallest first.
var Tiers = []Tier{
	{Name: "small", Bound: 400},
	{Name: "medium", Bound: 800},
	{Name: "large", Bound: 1400},
	{Name: "full"},
}

// Format is the output encoding chosen for a source image.
type Format struct {
	Ext         string
	ContentType string
}

var (
	formatPNG  = Format{Ext: "png", ContentType: "image/png"}
	formatJPEG = Format{Ext: "jpg", ContentType: "image/jpeg"}
)

// Decode reads a JPEG, PNG, GIF or WebP image and picks the output format:
// PNG sources stay PNG, everything else is written as JPEG.
func Decode(data []byte) (image.Image, Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode image: %w", err)
	}
	if name == "png" {
		return img, formatPNG, nil
	}
	return img, formatJPEG, nil
}

// Fit scales img so that it fits inside a bound x bound square, keeping the
// aspect ratio. Images already inside the box are returned unchanged.
func Fit(img image.Image, bound int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if bound <= 0 || (w <= bound && h <= bound) || w == 0 || h == 0 {
		return img
	}
	dw, dh := bound, bound
	if w >= h {
		dh = max(1, h*bound/w)
	} else {
		dw = max(1, w*bound/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Encode writes img in the given format.
func Encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format.Ext {
	case formatPNG.Ext:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Rendition is one encoded tier ready to be stored.
type Rendition struct {
	Tier   Tier
	Format Format
	Data   []byte
}

// Path returns the object path for a person's rendition.
func (r Rendition) Path(prefix string, personID int64) string {
	return ObjectPath(prefix, r.Tier.Name, personID, r.Format.Ext)
}

// ObjectPath builds "{prefix}/{tier}/{person_id}.{ext}", omitting an empty prefix.
func ObjectPath(prefix, tier string, personID int64, ext string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%d.%s", tier, personID, ext)
	}
	return fmt.Sprintf("%s/%s/%d.%s", prefix, tier, personID, ext)
}

// Render decodes data once and encodes every tier.
func Render(data []byte) ([]Rendition, error) {
	img, format, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out := make([]Rendition, 0, len(Tiers))
	for _, tier := range Tiers {
		encoded, err := Encode(Fit(img, tier.Bound), format)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier.Name, err)
		}
		out = append(out, Rendition{Tier: tier, Format: format, Data: encoded})
	}
	return out, nil
}
