package avatar

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"os"
	"strings"
	"unicode"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

const Size = 512

var defaultPalette = []string{
	"#4F46E5", "#0EA5E9", "#10B981", "#F59E0B", "#EF4444",
	"#8B5CF6", "#EC4899", "#14B8A6", "#F97316", "#64748B",
}

// Renderer draws initials-on-a-circle PNGs.
type Renderer struct {
	log     *logger.Logger
	palette []color.NRGBA
	face    font.Face
}

// NewRenderer loads AVATAR_FONT and AVATAR_COLORS_JSON_PATH when set and
// falls back to Go Bold and a built-in palette.
func NewRenderer(log *logger.Logger) (*Renderer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	rlog := log.With("component", "AvatarRenderer")

	fontBytes := gobold.TTF
	if path := strings.TrimSpace(os.Getenv("AVATAR_FONT")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read avatar font: %w", err)
		}
		fontBytes = b
		rlog.Info("loaded avatar font", "path", path)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse avatar font: %w", err)
	}
	face := truetype.NewFace(parsed, &truetype.Options{Size: 206, DPI: 72, Hinting: font.HintingNone})

	hexes := defaultPalette
	if path := strings.TrimSpace(os.Getenv("AVATAR_COLORS_JSON_PATH")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read avatar colors: %w", err)
		}
		var loaded []string
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("decode avatar colors: %w", err)
		}
		if len(loaded) > 0 {
			hexes = loaded
		}
	}
	palette := make([]color.NRGBA, 0, len(hexes))
	for _, h := range hexes {
		c, err := ParseHex(h)
		if err != nil {
			return nil, fmt.Errorf("avatar color %q: %w", h, err)
		}
		palette = append(palette, c)
	}
	return &Renderer{log: rlog, palette: palette, face: face}, nil
}

// ColorFor returns preferred when it is a valid hex color, else a palette
// entry chosen stably from seed.
func (r *Renderer) ColorFor(seed, preferred string) color.NRGBA {
	if c, err := ParseHex(preferred); err == nil {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return r.palette[int(h.Sum32()%uint32(len(r.palette)))]
}

// Render returns a Size x Size PNG with name's initials on bg.
func (r *Renderer) Render(name string, bg color.Color) ([]byte, error) {
	dc := gg.NewContext(Size, Size)
	dc.DrawCircle(Size/2, Size/2, Size/2)
	dc.Clip()
	dc.SetColor(bg)
	dc.DrawRectangle(0, 0, Size, Size)
	dc.Fill()

	dc.SetFontFace(r.face)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(Initials(name), Size/2, Size/2, 0.5, 0.35)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ProcessUpload center-crops raw to a square, scales it to Size and clips it
// to a circle.
func ProcessUpload(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	if side == 0 {
		return nil, fmt.Errorf("empty image")
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	src := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	dc := gg.NewContext(Size, Size)
	dc.DrawCircle(Size/2, Size/2, Size/2)
	dc.Clip()
	dc.DrawImage(dst, 0, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Initials takes the first letter of the first two words, upper-cased.
func Initials(name string) string {
	var out []rune
	for _, w := range strings.Fields(name) {
		for _, c := range w {
			if unicode.IsLetter(c) || unicode.IsDigit(c) {
				out = append(out, unicode.ToUpper(c))
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected 6 hex chars")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex: %w", err)
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 255}, nil
}

func ToHex(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
