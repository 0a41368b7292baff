package glpipe

import (
	"slices"
	"strconv"

	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/gldriver"
)

// FragmentStage generates the fragment shader: texture lookups and the
// combine code of each layer, followed by the alpha test when the driver has
// no native one.
type FragmentStage struct {
	stageCache
	// Emission scratch reused between generations.
	deps  [][]int
	order []int
}

func (fs *FragmentStage) Type() gldriver.ShaderType { return gldriver.FragmentShader }

func (fs *FragmentStage) Start(p *Pipeline, numLayers int) {
	ctx := fs.ctx
	st := fs.resolve(p, ctx.FragmentStateMask(), ctx.FragmentLayerMask())
	if prog := p.UserProgram(); prog != nil && prog.HasShader(gldriver.FragmentShader) {
		fs.deleteShader(st)
		return
	}
	if st.shader != 0 {
		return
	}
	layers := p.Layers()
	numLayers = max(numLayers, len(layers))
	st.generating = true
	st.refPointCoord = false
	st.pending = st.pending[:0]
	st.units = append(st.units[:0], make([]unitState, numLayers)...)

	buf := &ctx.codegen[gldriver.FragmentShader]
	buf.reset()
	for _, l := range layers {
		target, _ := l.textureType.TargetString()
		buf.header = glbuild.AppendIndexedUniformDecl(buf.header, "sampler"+target, "cogl_sampler", l.index)
	}
	buf.header = glbuild.AppendSnippetDeclarations(buf.header, p.FragmentSnippets(), glbuild.HookFragmentGlobals)
	buf.source = append(buf.source, "void\ncogl_generated_source ()\n{\n"...)
}

// AddLayer records l. Code is only generated at End for the layers the last
// layer depends on.
func (fs *FragmentStage) AddLayer(p *Pipeline, l *Layer) {
	st := fs.state(p)
	if st == nil || !st.generating {
		return
	}
	unit := p.layerUnit(l)
	if unit < 0 {
		panic("glpipe: layer " + strconv.Itoa(l.index) + " added to a pipeline that does not hold it")
	}
	st.pending = append(st.pending, pendingLayer{layer: l, unit: unit, prev: len(st.pending) - 1})
}

func (fs *FragmentStage) End(p *Pipeline) error {
	st := fs.state(p)
	if st == nil || !st.generating {
		return nil
	}
	st.generating = false
	ctx := fs.ctx
	buf := &ctx.codegen[gldriver.FragmentShader]

	if n := len(st.pending); n > 0 {
		fs.deps = slices.Grow(fs.deps[:0], n)[:n]
		for i, pl := range st.pending {
			fs.deps[i] = fs.deps[i][:0]
			if pl.prev >= 0 && pl.layer.readsPrevious() {
				fs.deps[i] = append(fs.deps[i], pl.prev)
			}
		}
		fs.order = glbuild.TopoOrder(fs.order[:0], n-1, fs.deps)
		for _, i := range fs.order {
			fs.generateLayer(p, st, buf, i)
		}
		buf.source = glbuild.AppendIndexedSuffix(buf.source, "  cogl_color_out = cogl_layer", st.pending[n-1].layer.index, ";\n")
	} else {
		buf.source = append(buf.source, "  cogl_color_out = cogl_color_in;\n"...)
	}

	if !ctx.feat.NativeAlphaTest {
		fn, _ := p.AlphaTest()
		buf.header, buf.source = appendAlphaTest(buf.header, buf.source, fn)
	}
	buf.source = append(buf.source, "}\n"...)
	buf.source = glbuild.AppendSnippetChain(buf.source, p.FragmentSnippets(), &glbuild.SnippetChain{
		Hook:           glbuild.HookFragment,
		ChainFunction:  "cogl_generated_source",
		FinalName:      "main",
		FunctionPrefix: "cogl_fragment_hook",
	})

	version := 0
	if st.refPointCoord && !ctx.feat.Embedded {
		// gl_PointCoord requires GLSL 1.20 on desktop GL.
		version = 120
	}
	st.pending = st.pending[:0]
	ctx.indices = p.LayerIndices(ctx.indices[:0])
	shader, err := ctx.compileShader(gldriver.FragmentShader, ctx.indices, version, buf.header, buf.source)
	if err != nil {
		return err
	}
	st.shader = shader
	return nil
}

// alphaTestOps maps each alpha function to the comparison that discards.
var alphaTestOps = map[AlphaFunc]string{
	AlphaLess:     ">=",
	AlphaEqual:    "!=",
	AlphaLEqual:   ">",
	AlphaGreater:  "<=",
	AlphaNotEqual: "==",
	AlphaGEqual:   "<",
}

func appendAlphaTest(header, source []byte, fn AlphaFunc) ([]byte, []byte) {
	switch fn {
	case AlphaAlways:
		return header, source
	case AlphaNever:
		return header, append(source, "  discard;\n"...)
	}
	op, ok := alphaTestOps[fn]
	if !ok {
		panic("glpipe: invalid alpha function " + fn.String())
	}
	header = glbuild.AppendUniformDecl(header, "float", "_cogl_alpha_test_ref")
	source = append(source, "  if (cogl_color_out.a "...)
	source = append(source, op...)
	source = append(source, " _cogl_alpha_test_ref)\n    discard;\n"...)
	return header, source
}

// generateLayer emits the code computing cogl_layerN for the i'th pending
// layer. Layers it reads through SourcePrevious must already be emitted.
func (fs *FragmentStage) generateLayer(p *Pipeline, st *shaderState, buf *codegenBuffers, i int) {
	pl := st.pending[i]
	l := pl.layer
	prevIndex := -1
	if pl.prev >= 0 {
		prevIndex = st.pending[pl.prev].layer.index
	}
	idx := strconv.Itoa(l.index)
	buf.header = append(buf.header, "vec4 cogl_layer"...)
	buf.header = append(buf.header, idx...)
	buf.header = append(buf.header, ";\n"...)

	if !glbuild.HasReplace(l.fragmentSnippets, glbuild.HookLayerFragment) {
		fs.ensureArgs(p, st, buf, pl, &l.rgb)
		fs.ensureArgs(p, st, buf, pl, &l.alpha)
		buf.header = append(buf.header, "vec4\ncogl_real_generate_layer"...)
		buf.header = append(buf.header, idx...)
		buf.header = append(buf.header, " ()\n{\n  vec4 cogl_layer;\n"...)

		appendSource := func(dst []byte, src glbuild.CombineSource, swizzle string) []byte {
			return fs.appendSource(dst, p, l, prevIndex, src, swizzle)
		}
		if !glbuild.NeedsSeparate(&l.rgb, &l.alpha) || l.rgb.Func == glbuild.CombineDot3RGBA {
			// DOT3_RGBA writes alpha too, so the alpha combine is ignored.
			buf.header = glbuild.AppendMaskedCombine(buf.header, "rgba", &l.rgb, appendSource)
		} else {
			buf.header = glbuild.AppendMaskedCombine(buf.header, "rgb", &l.rgb, appendSource)
			buf.header = glbuild.AppendMaskedCombine(buf.header, "a", &l.alpha, appendSource)
		}
		buf.header = append(buf.header, "  return cogl_layer;\n}\n"...)
	}
	buf.header = glbuild.AppendSnippetChain(buf.header, l.fragmentSnippets, &glbuild.SnippetChain{
		Hook:           glbuild.HookLayerFragment,
		ChainFunction:  "cogl_real_generate_layer" + idx,
		FinalName:      "cogl_generate_layer" + idx,
		FunctionPrefix: "cogl_generate_layer" + idx,
		ReturnType:     "vec4",
		ReturnVariable: "cogl_layer",
	})

	buf.source = append(buf.source, "  cogl_layer"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, " = cogl_generate_layer"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, " ();\n"...)
}

// ensureArgs declares what the arguments of c read before the combine
// function is emitted.
func (fs *FragmentStage) ensureArgs(p *Pipeline, st *shaderState, buf *codegenBuffers, pl pendingLayer, c *glbuild.Combine) {
	for _, src := range c.Args() {
		switch src {
		case glbuild.SourcePrimaryColor, glbuild.SourcePrevious:
		case glbuild.SourceConstant:
			if !st.units[pl.unit].constantDeclared {
				buf.header = glbuild.AppendIndexedUniformDecl(buf.header, "vec4", "_cogl_layer_constant_", pl.layer.index)
				st.units[pl.unit].constantDeclared = true
			}
		case glbuild.SourceTexture:
			fs.ensureTextureLookup(st, buf, pl.layer, pl.unit)
		default:
			n, ok := src.Layer()
			if !ok {
				panic("glpipe: invalid combine source " + src.String())
			}
			if other := p.Layer(n); other != nil {
				fs.ensureTextureLookup(st, buf, other, p.layerUnit(other))
			}
		}
	}
}

func (fs *FragmentStage) appendSource(dst []byte, p *Pipeline, l *Layer, prevIndex int, src glbuild.CombineSource, swizzle string) []byte {
	switch src {
	case glbuild.SourceTexture:
		dst = glbuild.AppendIndexed(dst, "cogl_texel", l.index)
	case glbuild.SourceConstant:
		dst = glbuild.AppendIndexed(dst, "_cogl_layer_constant_", l.index)
	case glbuild.SourcePrevious:
		if prevIndex >= 0 {
			dst = glbuild.AppendIndexed(dst, "cogl_layer", prevIndex)
		} else {
			dst = append(dst, "cogl_color_in"...)
		}
	case glbuild.SourcePrimaryColor:
		dst = append(dst, "cogl_color_in"...)
	default:
		n, _ := src.Layer()
		if p.Layer(n) == nil {
			fs.ctx.warnOnce("combine source reads a layer the pipeline does not have; substituting white", "layer", l.index, "source", src.String())
			dst = append(dst, "vec4 (1.0, 1.0, 1.0, 1.0)"...)
		} else {
			dst = glbuild.AppendIndexed(dst, "cogl_texel", n)
		}
	}
	dst = append(dst, '.')
	return append(dst, swizzle...)
}

// ensureTextureLookup samples the texture of l into cogl_texelN once per generation.
func (fs *FragmentStage) ensureTextureLookup(st *shaderState, buf *codegenBuffers, l *Layer, unit int) {
	if st.units[unit].sampled {
		return
	}
	st.units[unit].sampled = true
	idx := strconv.Itoa(l.index)
	target, swizzle := l.textureType.TargetString()

	buf.header = append(buf.header, "vec4 cogl_texel"...)
	buf.header = append(buf.header, idx...)
	buf.header = append(buf.header, ";\n"...)
	buf.source = append(buf.source, "  cogl_texel"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, " = cogl_texture_lookup"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, " (cogl_sampler"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, ", "...)
	if l.pointSprite {
		buf.source = append(buf.source, "vec4 (gl_PointCoord, 0.0, 1.0)"...)
		st.refPointCoord = true
	} else {
		buf.source = append(buf.source, "cogl_tex_coord"...)
		buf.source = append(buf.source, idx...)
		buf.source = append(buf.source, "_in"...)
	}
	buf.source = append(buf.source, ");\n"...)

	if !glbuild.HasReplace(l.fragmentSnippets, glbuild.HookTextureLookup) {
		buf.header = append(buf.header, "vec4\ncogl_real_texture_lookup"...)
		buf.header = append(buf.header, idx...)
		buf.header = append(buf.header, " (sampler"...)
		buf.header = append(buf.header, target...)
		buf.header = append(buf.header, " tex,\n                            vec4 coords)\n{\n  return "...)
		if fs.ctx.cfg.Debug.Has(DebugDisableTexturing) {
			buf.header = append(buf.header, "vec4 (1.0, 1.0, 1.0, 1.0);\n"...)
		} else {
			buf.header = append(buf.header, "texture"...)
			buf.header = append(buf.header, target...)
			buf.header = append(buf.header, " (tex, coords."...)
			buf.header = append(buf.header, swizzle...)
			buf.header = append(buf.header, ");\n"...)
		}
		buf.header = append(buf.header, "}\n"...)
	}
	buf.header = glbuild.AppendSnippetChain(buf.header, l.fragmentSnippets, &glbuild.SnippetChain{
		Hook:                 glbuild.HookTextureLookup,
		ChainFunction:        "cogl_real_texture_lookup" + idx,
		FinalName:            "cogl_texture_lookup" + idx,
		FunctionPrefix:       "cogl_texture_lookup_hook" + idx,
		ReturnType:           "vec4",
		ReturnVariable:       "cogl_texel",
		Arguments:            "cogl_sampler, cogl_tex_coord",
		ArgumentDeclarations: "sampler" + target + " cogl_sampler, vec4 cogl_tex_coord",
	})
}

func (fs *FragmentStage) PreChangeNotify(p *Pipeline, changed StateBit) {
	if changed&fs.ctx.FragmentStateMask() != 0 {
		fs.detach(p)
	}
}

func (fs *FragmentStage) LayerPreChangeNotify(owner *Pipeline, l *Layer, changed LayerStateBit) {
	if changed&fs.ctx.FragmentLayerMask() != 0 {
		fs.detach(owner)
	}
}
