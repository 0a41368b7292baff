// Package sampler deduplicates GPU sampler objects by their filter and wrap
// parameters.
//
// Entries are kept in two tables. The canonical table is keyed by parameters
// with [WrapAutomatic] resolved to [WrapClampToEdge] and owns the driver
// objects. The semantic table is keyed by the parameters as requested and
// borrows handles from the canonical table, so "automatic" and an explicit
// "clamp to edge" share one driver object but remain distinguishable.
package sampler

import (
	"strconv"

	"github.com/soypat/glpipe/gldriver"
)

// WrapMode is a texture coordinate wrap mode. Values match the GL enums.
type WrapMode uint32

const (
	WrapRepeat         WrapMode = 0x2901
	WrapMirroredRepeat WrapMode = 0x8370
	WrapClampToEdge    WrapMode = 0x812F
	// WrapAutomatic lets the texture pick its wrap mode. It is sent to the
	// driver as clamp to edge.
	WrapAutomatic WrapMode = 0x0207
)

func (w WrapMode) String() string {
	switch w {
	case WrapRepeat:
		return "repeat"
	case WrapMirroredRepeat:
		return "mirrored-repeat"
	case WrapClampToEdge:
		return "clamp-to-edge"
	case WrapAutomatic:
		return "automatic"
	}
	return "WrapMode(0x" + strconv.FormatUint(uint64(w), 16) + ")"
}

// resolved returns the wrap mode the driver is configured with.
func (w WrapMode) resolved() WrapMode {
	if w == WrapAutomatic {
		return WrapClampToEdge
	}
	return w
}

// Filter is a texture minification or magnification filter. Values match the GL enums.
type Filter uint32

const (
	FilterNearest              Filter = 0x2600
	FilterLinear               Filter = 0x2601
	FilterNearestMipmapNearest Filter = 0x2700
	FilterLinearMipmapNearest  Filter = 0x2701
	FilterNearestMipmapLinear  Filter = 0x2702
	FilterLinearMipmapLinear   Filter = 0x2703
)

func (f Filter) String() string {
	switch f {
	case FilterNearest:
		return "nearest"
	case FilterLinear:
		return "linear"
	case FilterNearestMipmapNearest:
		return "nearest-mipmap-nearest"
	case FilterLinearMipmapNearest:
		return "linear-mipmap-nearest"
	case FilterNearestMipmapLinear:
		return "nearest-mipmap-linear"
	case FilterLinearMipmapLinear:
		return "linear-mipmap-linear"
	}
	return "Filter(0x" + strconv.FormatUint(uint64(f), 16) + ")"
}

// Entry is a cached set of sampling parameters and the driver sampler object
// configured with them. Entries are immutable and owned by a [Cache]; compare
// them by pointer.
type Entry struct {
	// Handle is the driver sampler object, or a synthesized unique id when the
	// driver lacks sampler objects.
	Handle    uint32
	MinFilter Filter
	MagFilter Filter
	WrapS     WrapMode
	WrapT     WrapMode
	WrapP     WrapMode
}

type key struct {
	min, mag Filter
	s, t, p  WrapMode
}

func (e *Entry) key() key {
	return key{min: e.MinFilter, mag: e.MagFilter, s: e.WrapS, t: e.WrapT, p: e.WrapP}
}

func (k key) canonical() key {
	k.s = k.s.resolved()
	k.t = k.t.resolved()
	k.p = k.p.resolved()
	return k
}

// Driver is the subset of [gldriver.Driver] used by the cache.
type Driver interface {
	Features() gldriver.Features
	GenSampler() uint32
	SamplerParameter(sampler uint32, param gldriver.SamplerParam, value int32)
	DeleteSampler(sampler uint32)
}

// Cache is a two level sampler cache owned by a rendering context. It is not
// safe for concurrent use.
type Cache struct {
	drv       Driver
	canonical map[key]*Entry
	semantic  map[key]*Entry
	// nextFakeID synthesizes handles when the driver lacks sampler objects.
	nextFakeID uint32
}

// NewCache returns an empty cache allocating sampler objects through drv.
func NewCache(drv Driver) *Cache {
	return &Cache{
		drv:        drv,
		canonical:  make(map[key]*Entry),
		semantic:   make(map[key]*Entry),
		nextFakeID: 1,
	}
}

// Default returns the entry for linear filtering with automatic wrap modes.
func (c *Cache) Default() *Entry {
	return c.get(key{
		min: FilterLinear,
		mag: FilterLinear,
		s:   WrapAutomatic,
		t:   WrapAutomatic,
		p:   WrapAutomatic,
	})
}

// UpdateWrapModes returns the entry with old's filters and the given wrap modes.
func (c *Cache) UpdateWrapModes(old *Entry, s, t, p WrapMode) *Entry {
	k := old.key()
	k.s, k.t, k.p = s, t, p
	return c.get(k)
}

// UpdateFilters returns the entry with old's wrap modes and the given filters.
func (c *Cache) UpdateFilters(old *Entry, min, mag Filter) *Entry {
	k := old.key()
	k.min, k.mag = min, mag
	return c.get(k)
}

// Len returns the number of semantic and canonical entries.
func (c *Cache) Len() (semantic, canonical int) {
	return len(c.semantic), len(c.canonical)
}

func (c *Cache) get(k key) *Entry {
	if e, ok := c.semantic[k]; ok {
		return e
	}
	canon := c.getCanonical(k.canonical())
	e := &Entry{
		Handle:    canon.Handle,
		MinFilter: k.min,
		MagFilter: k.mag,
		WrapS:     k.s,
		WrapT:     k.t,
		WrapP:     k.p,
	}
	c.semantic[k] = e
	return e
}

func (c *Cache) getCanonical(k key) *Entry {
	if e, ok := c.canonical[k]; ok {
		return e
	}
	e := &Entry{
		MinFilter: k.min,
		MagFilter: k.mag,
		WrapS:     k.s,
		WrapT:     k.t,
		WrapP:     k.p,
	}
	feat := c.drv.Features()
	if feat.SamplerObjects {
		e.Handle = c.drv.GenSampler()
		c.drv.SamplerParameter(e.Handle, gldriver.SamplerMinFilter, int32(k.min))
		c.drv.SamplerParameter(e.Handle, gldriver.SamplerMagFilter, int32(k.mag))
		c.drv.SamplerParameter(e.Handle, gldriver.SamplerWrapS, int32(k.s))
		c.drv.SamplerParameter(e.Handle, gldriver.SamplerWrapT, int32(k.t))
		if feat.Texture3D {
			c.drv.SamplerParameter(e.Handle, gldriver.SamplerWrapR, int32(k.p))
		}
	} else {
		e.Handle = c.nextFakeID
		c.nextFakeID++
	}
	c.canonical[k] = e
	return e
}

// Destroy releases every driver sampler object and empties both tables.
// Entries previously returned must not be used after Destroy.
func (c *Cache) Destroy() {
	if c.drv.Features().SamplerObjects {
		for _, e := range c.canonical {
			c.drv.DeleteSampler(e.Handle)
		}
	}
	clear(c.canonical)
	clear(c.semantic)
	c.nextFakeID = 1
}
