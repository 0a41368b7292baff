package glpipe

import (
	"cmp"
	"slices"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/sampler"
)

// LayerStateBit identifies a group of layer state.
type LayerStateBit uint32

const (
	// LayerUnit is the texture unit of the layer, its position in the layer list.
	LayerUnit LayerStateBit = 1 << iota
	LayerTextureType
	LayerSampler
	LayerCombine
	LayerCombineConstant
	LayerUserMatrix
	LayerPointSpriteCoords
	LayerVertexSnippets
	LayerFragmentSnippets
)

// Layer is one texture stage of a pipeline. Layers are identified by a
// user chosen index and are kept sorted by it; the texture unit of a layer
// is its position in that order. Layers may be shared between pipelines and
// are copied before being modified.
type Layer struct {
	index int
	// refs counts the layer lists holding the layer.
	refs int

	textureType      glbuild.TextureType
	sampler          *sampler.Entry
	rgb, alpha       glbuild.Combine
	constant         [4]float32
	matrix           ms3.Mat4
	pointSprite      bool
	vertexSnippets   []glbuild.Snippet
	fragmentSnippets []glbuild.Snippet
}

func newLayer(ctx *Context, index int) *Layer {
	return &Layer{
		index:       index,
		refs:        1,
		textureType: glbuild.Texture2D,
		sampler:     ctx.samplers.Default(),
		rgb:         glbuild.DefaultRGBCombine,
		alpha:       glbuild.DefaultAlphaCombine,
		matrix:      ms3.ScalingMat4(ms3.Vec{X: 1, Y: 1, Z: 1}),
	}
}

func (l *Layer) clone() *Layer {
	c := *l
	c.refs = 1
	c.vertexSnippets = slices.Clone(l.vertexSnippets)
	c.fragmentSnippets = slices.Clone(l.fragmentSnippets)
	return &c
}

func (l *Layer) Index() int                       { return l.index }
func (l *Layer) TextureType() glbuild.TextureType { return l.textureType }
func (l *Layer) Sampler() *sampler.Entry          { return l.sampler }
func (l *Layer) Constant() [4]float32             { return l.constant }
func (l *Layer) Matrix() ms3.Mat4                 { return l.matrix }
func (l *Layer) PointSpriteCoords() bool          { return l.pointSprite }

// Combine returns the RGB and alpha combine functions of the layer.
func (l *Layer) Combine() (rgb, alpha glbuild.Combine) { return l.rgb, l.alpha }

// Snippets returns the layer snippets of the vertex or fragment stage.
func (l *Layer) Snippets(vertex bool) []glbuild.Snippet {
	if vertex {
		return l.vertexSnippets
	}
	return l.fragmentSnippets
}

// readsPrevious reports whether the generated combine code of l reads the
// result of the previous layer.
func (l *Layer) readsPrevious() bool {
	if glbuild.HasReplace(l.fragmentSnippets, glbuild.HookLayerFragment) {
		return false
	}
	return slices.Contains(l.rgb.Args(), glbuild.SourcePrevious) ||
		slices.Contains(l.alpha.Args(), glbuild.SourcePrevious)
}

// Layers returns the layers of p sorted by index. The slice must not be modified.
func (p *Pipeline) Layers() []*Layer { return p.authority(StateLayers).layers }

// NumLayers returns the number of layers of p.
func (p *Pipeline) NumLayers() int { return len(p.Layers()) }

// LayerIndices appends the index of every layer of p in unit order to dst.
func (p *Pipeline) LayerIndices(dst []int) []int {
	for _, l := range p.Layers() {
		dst = append(dst, l.index)
	}
	return dst
}

func searchLayer(layers []*Layer, index int) (int, bool) {
	return slices.BinarySearchFunc(layers, index, func(l *Layer, idx int) int {
		return cmp.Compare(l.index, idx)
	})
}

// Layer returns the layer with the given index or nil.
func (p *Pipeline) Layer(index int) *Layer {
	layers := p.Layers()
	if i, ok := searchLayer(layers, index); ok {
		return layers[i]
	}
	return nil
}

// layerUnit returns the texture unit of l in p or -1.
func (p *Pipeline) layerUnit(l *Layer) int {
	i, ok := searchLayer(p.Layers(), l.index)
	if !ok {
		return -1
	}
	return i
}

// layerForWrite returns a layer with the given index that p alone holds,
// creating it if needed. change is reported to the stages before returning.
func (p *Pipeline) layerForWrite(index int, change LayerStateBit) *Layer {
	if index < 0 {
		panic("glpipe: negative layer index")
	}
	i, found := searchLayer(p.Layers(), index)
	if !found {
		// Adding a layer changes the layer count.
		p.preChange(StateLayers, false)
		p.own(StateLayers)
		l := newLayer(p.ctx, index)
		p.layers = slices.Insert(p.layers, i, l)
		return l
	}
	p.preChange(StateLayers, true)
	p.own(StateLayers)
	l := p.layers[i]
	if l.refs > 1 {
		l.refs--
		l = l.clone()
		p.layers[i] = l
	}
	p.ctx.layerPreChange(p, l, change)
	return l
}

// AddLayer ensures p has a layer with the given index with default state.
func (p *Pipeline) AddLayer(index int) *Layer {
	if l := p.Layer(index); l != nil {
		return l
	}
	return p.layerForWrite(index, 0)
}

// RemoveLayer removes the layer with the given index if present.
func (p *Pipeline) RemoveLayer(index int) {
	if _, ok := searchLayer(p.Layers(), index); !ok {
		return
	}
	p.preChange(StateLayers, false)
	p.own(StateLayers)
	i, _ := searchLayer(p.layers, index)
	p.layers[i].refs--
	p.layers = slices.Delete(p.layers, i, i+1)
}

// SetLayerTextureType sets the sampler target of a layer.
func (p *Pipeline) SetLayerTextureType(index int, tt glbuild.TextureType) {
	if l := p.Layer(index); l != nil && l.textureType == tt {
		return
	}
	l := p.layerForWrite(index, LayerTextureType)
	l.textureType = tt
}

// SetLayerCombine sets the RGB and alpha combine functions of a layer.
func (p *Pipeline) SetLayerCombine(index int, rgb, alpha glbuild.Combine) {
	if l := p.Layer(index); l != nil && l.rgb.Equal(&rgb) && l.alpha.Equal(&alpha) {
		return
	}
	if rgb.Func > glbuild.CombineDot3RGBA || alpha.Func > glbuild.CombineDot3RGBA {
		panic("glpipe: invalid combine function")
	}
	l := p.layerForWrite(index, LayerCombine)
	l.rgb, l.alpha = rgb, alpha
}

// SetLayerConstant sets the color read by [glbuild.SourceConstant].
func (p *Pipeline) SetLayerConstant(index int, r, g, b, a float32) {
	c := [4]float32{r, g, b, a}
	if l := p.Layer(index); l != nil && l.constant == c {
		return
	}
	l := p.layerForWrite(index, LayerCombineConstant)
	l.constant = c
}

// SetLayerMatrix sets the texture coordinate transform of a layer.
func (p *Pipeline) SetLayerMatrix(index int, m ms3.Mat4) {
	if l := p.Layer(index); l != nil && l.matrix == m {
		return
	}
	l := p.layerForWrite(index, LayerUserMatrix)
	l.matrix = m
}

// SetLayerFilters sets the minification and magnification filters of a layer.
func (p *Pipeline) SetLayerFilters(index int, min, mag sampler.Filter) {
	old := p.Layer(index)
	if old != nil && old.sampler.MinFilter == min && old.sampler.MagFilter == mag {
		return
	}
	l := p.layerForWrite(index, LayerSampler)
	l.sampler = p.ctx.samplers.UpdateFilters(l.sampler, min, mag)
}

// SetLayerWrapModes sets the wrap modes of a layer for each texture coordinate.
func (p *Pipeline) SetLayerWrapModes(index int, s, t, r sampler.WrapMode) {
	old := p.Layer(index)
	if old != nil && old.sampler.WrapS == s && old.sampler.WrapT == t && old.sampler.WrapP == r {
		return
	}
	l := p.layerForWrite(index, LayerSampler)
	l.sampler = p.ctx.samplers.UpdateWrapModes(l.sampler, s, t, r)
}

// SetLayerPointSpriteCoords makes the layer sample with the point sprite
// coordinate instead of its texture coordinate attribute.
func (p *Pipeline) SetLayerPointSpriteCoords(index int, enable bool) {
	if l := p.Layer(index); l != nil && l.pointSprite == enable {
		return
	}
	l := p.layerForWrite(index, LayerPointSpriteCoords)
	l.pointSprite = enable
}

// AddLayerSnippet appends a snippet to a layer. Only layer hooks are accepted.
func (p *Pipeline) AddLayerSnippet(index int, s glbuild.Snippet) {
	switch s.Hook {
	case glbuild.HookTextureCoordTransform:
		l := p.layerForWrite(index, LayerVertexSnippets)
		l.vertexSnippets = append(l.vertexSnippets, s)
	case glbuild.HookLayerFragment, glbuild.HookTextureLookup:
		l := p.layerForWrite(index, LayerFragmentSnippets)
		l.fragmentSnippets = append(l.fragmentSnippets, s)
	default:
		panic("glpipe: snippet hook " + s.Hook.String() + " can not be added to a layer")
	}
}
