package media

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/genmedia/mcpgen/internal/apperr"
)

// sampleEdge bounds the thumbnail used for colour counting.
const sampleEdge = 64

// mergeDistance is the CIELAB distance under which two quantized colours are
// reported as one.
const mergeDistance = 0.08

// MaxPixels caps width*height accepted by Inspect. Compressed formats can
// declare far more pixels than their byte size suggests.
const MaxPixels = 40_000_000

// DominantColor is one entry of ImageInfo.DominantColors.
type DominantColor struct {
	Hex        string  `json:"hex"`
	Percentage float64 `json:"percentage"`
}

// ImageInfo is what Inspect learns about an image without calling any API.
type ImageInfo struct {
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	Format         string          `json:"format"`
	DominantColors []DominantColor `json:"dominant_colors"`
}

// Inspect decodes data and reports dimensions, format and up to count dominant
// colours. Undecodable data is a validation error.
func Inspect(data []byte, count int) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation("inspect image", "unsupported or corrupt image: %v", err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxPixels {
		return nil, apperr.Validation("inspect image", "%dx%d exceeds the %d pixel limit", cfg.Width, cfg.Height, MaxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Validation("inspect image", "decode: %v", err)
	}

	b := img.Bounds()
	return &ImageInfo{
		Width:          b.Dx(),
		Height:         b.Dy(),
		Format:         format,
		DominantColors: dominantColors(img, count),
	}, nil
}

func dominantColors(img image.Image, count int) []DominantColor {
	if count <= 0 {
		return nil
	}
	thumb := imaging.Fit(img, sampleEdge, sampleEdge, imaging.Box)
	b := thumb.Bounds()

	counts := make(map[[3]uint8]int)
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := thumb.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			key := [3]uint8{uint8((r >> 8) / 16 * 16), uint8((g >> 8) / 16 * 16), uint8((bl >> 8) / 16 * 16)}
			counts[key]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	type bucket struct {
		c colorful.Color
		n int
	}
	buckets := make([]bucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, bucket{
			c: colorful.Color{R: float64(k[0]) / 255, G: float64(k[1]) / 255, B: float64(k[2]) / 255},
			n: n,
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].n != buckets[j].n {
			return buckets[i].n > buckets[j].n
		}
		return buckets[i].c.Hex() < buckets[j].c.Hex()
	})

	// Fold perceptually close buckets into the more frequent one.
	var merged []bucket
	for _, bk := range buckets {
		folded := false
		for i := range merged {
			if merged[i].c.DistanceLab(bk.c) < mergeDistance {
				merged[i].n += bk.n
				folded = true
				break
			}
		}
		if !folded {
			merged = append(merged, bk)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].n > merged[j].n })

	if len(merged) > count {
		merged = merged[:count]
	}
	out := make([]DominantColor, len(merged))
	for i, m := range merged {
		out[i] = DominantColor{
			Hex:        m.c.Hex(),
			Percentage: roundTo(float64(m.n)/float64(total)*100, 1),
		}
	}
	return out
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

// Describe is a one-line summary used in tool output logs.
func (i *ImageInfo) Describe() string {
	return fmt.Sprintf("%s %dx%d", i.Format, i.Width, i.Height)
}
