package glpipe

import (
	"encoding/binary"
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/uniform"
)

// FindEquivalentAncestor returns the furthest ancestor of p that would
// generate the same code as p, given the pipeline state in stateMask and the
// layer state in layerMask that affect code generation. The layer count and
// layer indices are always compared.
func (p *Pipeline) FindEquivalentAncestor(stateMask StateBit, layerMask LayerStateBit) *Pipeline {
	stateMask &^= StateLayers
	mask := stateMask | StateLayers
	a0 := p.authority(mask)
	if a0.parent == nil {
		return a0
	}
	a1 := a0.parent.authority(mask)
	for {
		if !equivalent(a0, a1, stateMask, layerMask) {
			return a0
		}
		if a1.parent == nil {
			break
		}
		a0 = a1
		a1 = a1.parent.authority(mask)
	}
	return a1
}

func equivalent(a, b *Pipeline, stateMask StateBit, layerMask LayerStateBit) bool {
	la, lb := a.Layers(), b.Layers()
	if len(la) != len(lb) || !stateEqual(a, b, stateMask) {
		return false
	}
	for i := range la {
		if la[i] != lb[i] && !layerEqual(la[i], lb[i], layerMask) {
			return false
		}
	}
	return true
}

// stateEqual compares the values a and b resolve for every group in mask
// except StateLayers.
func stateEqual(a, b *Pipeline, mask StateBit) bool {
	for bit := StateBit(1); bit <= mask && bit != 0; bit <<= 1 {
		if mask&bit == 0 {
			continue
		}
		var eq bool
		switch bit {
		case StateLayers:
			eq = true
		case StateColor:
			eq = a.Color() == b.Color()
		case StateAlphaFunc:
			fa, _ := a.AlphaTest()
			fb, _ := b.AlphaTest()
			eq = fa == fb
		case StateAlphaFuncReference:
			_, ra := a.AlphaTest()
			_, rb := b.AlphaTest()
			eq = ra == rb
		case StateUserProgram:
			eq = a.UserProgram() == b.UserProgram()
		case StatePointSize:
			eq = a.PointSize() == b.PointSize()
		case StateNonZeroPointSize:
			eq = (a.PointSize() > 0) == (b.PointSize() > 0)
		case StatePerVertexPointSize:
			eq = a.PerVertexPointSize() == b.PerVertexPointSize()
		case StateVertexSnippets:
			eq = slices.Equal(a.VertexSnippets(), b.VertexSnippets())
		case StateFragmentSnippets:
			eq = slices.Equal(a.FragmentSnippets(), b.FragmentSnippets())
		case StateUniforms:
			eq = slices.EqualFunc(a.authority(StateUniforms).state.uniforms, b.authority(StateUniforms).state.uniforms,
				func(x, y namedUniform) bool { return x.name == y.name && uniform.Equal(&x.value, &y.value) })
		default:
			panic("glpipe: unknown state bit " + bit.String())
		}
		if !eq {
			return false
		}
	}
	return true
}

// layerEqual compares a and b for every group in mask. Indices are always
// compared since they name the generated identifiers.
func layerEqual(a, b *Layer, mask LayerStateBit) bool {
	if a.index != b.index {
		return false
	}
	if mask&LayerTextureType != 0 && a.textureType != b.textureType {
		return false
	}
	if mask&LayerSampler != 0 && a.sampler != b.sampler {
		return false
	}
	if mask&LayerCombine != 0 && !(a.rgb.Equal(&b.rgb) && a.alpha.Equal(&b.alpha)) {
		return false
	}
	if mask&LayerCombineConstant != 0 && a.constant != b.constant {
		return false
	}
	if mask&LayerUserMatrix != 0 && a.matrix != b.matrix {
		return false
	}
	if mask&LayerPointSpriteCoords != 0 && a.pointSprite != b.pointSprite {
		return false
	}
	if mask&LayerVertexSnippets != 0 && !slices.Equal(a.vertexSnippets, b.vertexSnippets) {
		return false
	}
	if mask&LayerFragmentSnippets != 0 && !slices.Equal(a.fragmentSnippets, b.fragmentSnippets) {
		return false
	}
	return true
}

// Fingerprint appends a byte encoding of the state of p selected by the
// masks to dst. Two pipelines with equal fingerprints for the same masks
// generate the same code. Layers are always encoded.
func (p *Pipeline) Fingerprint(dst []byte, stateMask StateBit, layerMask LayerStateBit) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(stateMask&^StateLayers))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(layerMask))
	if stateMask&StateColor != 0 {
		for _, c := range p.Color() {
			dst = appendFloat(dst, c)
		}
	}
	fn, ref := p.AlphaTest()
	if stateMask&StateAlphaFunc != 0 {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(fn))
	}
	if stateMask&StateAlphaFuncReference != 0 {
		dst = appendFloat(dst, ref)
	}
	if stateMask&StateUserProgram != 0 {
		var id uint64
		if prog := p.UserProgram(); prog != nil {
			id = prog.id
		}
		dst = binary.AppendUvarint(dst, id)
	}
	if stateMask&StatePointSize != 0 {
		dst = appendFloat(dst, p.PointSize())
	}
	if stateMask&StateNonZeroPointSize != 0 {
		dst = appendBool(dst, p.PointSize() > 0)
	}
	if stateMask&StatePerVertexPointSize != 0 {
		dst = appendBool(dst, p.PerVertexPointSize())
	}
	if stateMask&StateVertexSnippets != 0 {
		dst = appendSnippets(dst, p.VertexSnippets())
	}
	if stateMask&StateFragmentSnippets != 0 {
		dst = appendSnippets(dst, p.FragmentSnippets())
	}
	if stateMask&StateUniforms != 0 {
		us := p.authority(StateUniforms).state.uniforms
		dst = binary.AppendUvarint(dst, uint64(len(us)))
		for i := range us {
			dst = appendString(dst, us[i].name)
			dst = append(dst, byte(us[i].value.Kind()), byte(us[i].value.Size()))
			dst = binary.AppendUvarint(dst, uint64(us[i].value.Count()))
			for _, f := range us[i].value.Floats() {
				dst = appendFloat(dst, f)
			}
		}
	}
	layers := p.Layers()
	dst = binary.AppendUvarint(dst, uint64(len(layers)))
	for _, l := range layers {
		dst = binary.AppendVarint(dst, int64(l.index))
		dst = l.appendFingerprint(dst, layerMask)
	}
	return dst
}

func (l *Layer) appendFingerprint(dst []byte, mask LayerStateBit) []byte {
	if mask&LayerTextureType != 0 {
		dst = append(dst, byte(l.textureType))
	}
	if mask&LayerSampler != 0 {
		s := l.sampler
		dst = binary.LittleEndian.AppendUint32(dst, uint32(s.MinFilter))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(s.MagFilter))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(s.WrapS))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(s.WrapT))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(s.WrapP))
	}
	if mask&LayerCombine != 0 {
		dst = appendCombine(dst, &l.rgb)
		dst = appendCombine(dst, &l.alpha)
	}
	if mask&LayerCombineConstant != 0 {
		for _, c := range l.constant {
			dst = appendFloat(dst, c)
		}
	}
	if mask&LayerUserMatrix != 0 {
		for _, v := range l.matrix.Array() {
			dst = appendFloat(dst, v)
		}
	}
	if mask&LayerPointSpriteCoords != 0 {
		dst = appendBool(dst, l.pointSprite)
	}
	if mask&LayerVertexSnippets != 0 {
		dst = appendSnippets(dst, l.vertexSnippets)
	}
	if mask&LayerFragmentSnippets != 0 {
		dst = appendSnippets(dst, l.fragmentSnippets)
	}
	return dst
}

// appendCombine encodes only the arguments the function reads so that
// combines comparing Equal encode identically.
func appendCombine(dst []byte, c *glbuild.Combine) []byte {
	dst = append(dst, byte(c.Func))
	for i, src := range c.Args() {
		dst = binary.AppendVarint(dst, int64(src))
		dst = append(dst, byte(c.Op[i]))
	}
	return dst
}

func appendSnippets(dst []byte, snippets []glbuild.Snippet) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(snippets)))
	for i := range snippets {
		s := &snippets[i]
		dst = append(dst, byte(s.Hook))
		dst = appendString(dst, s.Declarations)
		dst = appendString(dst, s.Pre)
		dst = appendString(dst, s.Replace)
		dst = appendString(dst, s.Post)
	}
	return dst
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendFloat(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math32.Float32bits(f))
}

func appendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}
