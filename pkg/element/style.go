package element

import (
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Color is an RGB colour with components in [0, 1].
type Color struct {
	R, G, B float64
}

// ParseColor reads a colour written as "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("element: colour %q: expected #rrggbb", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("element: colour %q: %w", s, err)
	}
	return Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

// Hex returns the colour as "#rrggbb".
func (c Color) Hex() string {
	b := func(x float64) uint8 {
		switch {
		case x <= 0:
			return 0
		case x >= 1:
			return 255
		}
		return uint8(x*255 + 0.5)
	}
	return fmt.Sprintf("#%02x%02x%02x", b(c.R), b(c.G), b(c.B))
}

// Style is a render style.
type Style struct {
	ID           string
	Name         string
	Color        Color
	Transparency float64
}

// StyleCache interns styles by identifier so that every element
// referring to the same identifier shares one *Style. It is bounded and
// safe for concurrent use. Sharing holds only while a style stays cached:
// once evicted, interning its identifier again caches the new value.
type StyleCache struct {
	styles *lru.Cache[string, *Style]
}

// NewStyleCache returns a cache holding at most size styles.
func NewStyleCache(size int) (*StyleCache, error) {
	c, err := lru.New[string, *Style](size)
	if err != nil {
		return nil, fmt.Errorf("element: style cache: %w", err)
	}
	return &StyleCache{styles: c}, nil
}

// Intern returns the cached style with the identifier of s, caching s
// if there is none. Styles without an identifier are not cached.
func (c *StyleCache) Intern(s *Style) *Style {
	if s == nil || s.ID == "" {
		return s
	}
	prev, ok, _ := c.styles.PeekOrAdd(s.ID, s)
	if ok {
		return prev
	}
	return s
}

// Get returns the cached style with identifier id.
func (c *StyleCache) Get(id string) (*Style, bool) {
	return c.styles.Get(id)
}

// Len returns the number of cached styles.
func (c *StyleCache) Len() int {
	return c.styles.Len()
}
