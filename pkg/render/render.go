package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/extra-connectors/tpbridge/pkg/assets"
	"github.com/extra-connectors/tpbridge/pkg/battery"
)

// Gauge geometry, in pixels.
const (
	Radius      = 100
	Padding     = 5
	StrokeThin  = 2
	StrokeThick = 25
	IconSize    = 100
	FontSize    = 36

	// Width and Height fit two gauges and three paddings per axis.
	Width  = Radius*4 + Padding*3
	Height = Radius*4 + Padding*3

	// glyphOffset is where the state glyph sits relative to the gauge
	// origin, on both axes.
	glyphOffset = Radius - IconSize/2 + 15
)

var iconNames = map[battery.Gauge]string{
	battery.GaugeBudsLeft:  assets.BudsLeft,
	battery.GaugeBudsRight: assets.BudsRight,
	battery.GaugeHeadset:   assets.Headset,
	battery.GaugeMouse:     assets.Mouse,
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithObserver registers a callback that receives the duration of every
// successful render.
func WithObserver(f func(time.Duration)) Option {
	return func(r *Renderer) {
		r.observe = f
	}
}

// Renderer draws the battery dashboard.
type Renderer struct {
	cache   *assets.Cache
	observe func(time.Duration)

	mu    *sync.Mutex
	icons map[battery.Gauge]image.Image
	face  font.Face
}

// New creates a Renderer that takes its icons from cache.
func New(cache *assets.Cache, opts ...Option) *Renderer {
	r := &Renderer{
		cache: cache,
		mu:    &sync.Mutex{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Prepare resolves and scales the four device icons and the glyph font.
// It is a no-op once it succeeded.
func (r *Renderer) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prepareLocked()
}

func (r *Renderer) prepareLocked() error {
	if r.icons != nil {
		return nil
	}

	if r.face == nil {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to parse glyph font")
		}
		r.face = truetype.NewFace(f, &truetype.Options{Size: FontSize})
	}

	icons := make(map[battery.Gauge]image.Image, len(iconNames))
	for _, g := range battery.Gauges {
		img, err := r.cache.Get(iconNames[g])
		if err != nil {
			return err
		}
		icons[g] = scaleIcon(img)
	}
	r.icons = icons
	return nil
}

// Render draws d onto a fresh surface and returns it PNG encoded. Identical
// data always yields identical bytes.
func (r *Renderer) Render(d battery.Data) ([]byte, error) {
	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.prepareLocked(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(Width, Height)
	dc.SetFontFace(r.face)
	dc.SetLineCapButt()

	for i, g := range battery.Gauges {
		gx, gy := i%2, i/2
		lvl := d.Level(g)
		r.drawGauge(dc, gx, gy, lvl.Percent, battery.Resolve(g.Family(), lvl.Status), r.icons[g])
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to encode png")
	}

	elapsed := time.Since(start)
	logrus.WithFields(logrus.Fields{
		"bytes":   buf.Len(),
		"elapsed": elapsed,
	}).Debug("dashboard rendered")
	if r.observe != nil {
		r.observe(elapsed)
	}

	return buf.Bytes(), nil
}

// RenderBase64 is Render with the PNG encoded as standard base64.
func (r *Renderer) RenderBase64(d battery.Data) (string, error) {
	b, err := r.Render(d)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Origin returns the top-left corner of the gauge at grid position gx, gy.
func Origin(gx, gy int) (float64, float64) {
	x := Padding*(gx+1) + Radius*2*gx
	y := Padding*(gy+1) + Radius*2*gy
	return float64(x), float64(y)
}

// Clamp limits a percentage to [0, 100]. Absent and NaN are 0.
func Clamp(percent *float64) float64 {
	if percent == nil || math.IsNaN(*percent) {
		return 0
	}
	return min(100, max(0, *percent))
}

// Sweep returns the clockwise sweep of the percentage arc in radians.
func Sweep(percent *float64) float64 {
	return 2 * math.Pi * Clamp(percent) / 100
}

func (r *Renderer) drawGauge(dc *gg.Context, gx, gy int, percent *float64, state *battery.DisplayState, icon image.Image) {
	ox, oy := Origin(gx, gy)
	cx, cy := ox+Radius, oy+Radius
	inset := float64(Radius) - StrokeThin/2.0

	dc.SetRGB(1, 1, 1)

	dc.SetLineWidth(StrokeThin)
	dc.DrawCircle(cx, cy, inset)
	dc.Stroke()

	dc.DrawCircle(cx, cy, inset-StrokeThick)
	dc.Stroke()

	if icon != nil {
		pos := Radius - IconSize/2
		dc.DrawImage(icon, int(ox)+pos, int(oy)+pos)
	}

	// A zero sweep draws nothing.
	if sweep := Sweep(percent); sweep > 0 {
		start := -0.5 * math.Pi
		dc.SetLineWidth(StrokeThick)
		dc.NewSubPath()
		dc.DrawArc(cx, cy, inset-StrokeThick/2.0, start, start+sweep)
		dc.Stroke()
	}

	if state != nil {
		dc.SetColor(state.Color)
		dc.DrawStringAnchored(state.Glyph, ox+glyphOffset, oy+glyphOffset, 0.5, 0.5)
	}
}

func scaleIcon(src image.Image) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, IconSize, IconSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
