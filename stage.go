package glpipe

import "github.com/soypat/glpipe/gldriver"

// Stage generates and caches the shader of one programmable stage.
//
// For a flush the stage receives Start, then AddLayer for each layer in
// unit order, then End. When the pipeline already has a compiled shader
// attached the calls are no-ops.
type Stage interface {
	Type() gldriver.ShaderType
	Start(p *Pipeline, numLayers int)
	AddLayer(p *Pipeline, l *Layer)
	// End compiles the generated source. Only resource exhaustion is
	// reported as an error; compile failures are logged.
	End(p *Pipeline) error
	// PreChangeNotify is called before the state groups in changed are
	// modified on p.
	PreChangeNotify(p *Pipeline, changed StateBit)
	// LayerPreChangeNotify is called before the layer state in changed is
	// modified on l, a layer held by owner.
	LayerPreChangeNotify(owner *Pipeline, l *Layer, changed LayerStateBit)
	// Shader returns the compiled shader for p, or 0.
	Shader(p *Pipeline) uint32
}

var (
	_ Stage = (*VertexStage)(nil)
	_ Stage = (*FragmentStage)(nil)
)

// codegenBuffers are reused between generations of the same stage.
type codegenBuffers struct {
	header []byte
	source []byte
}

func (b *codegenBuffers) reset() {
	b.header = b.header[:0]
	b.source = b.source[:0]
}

// VertexStateMask returns the pipeline state that affects the generated vertex shader.
func (ctx *Context) VertexStateMask() StateBit {
	mask := StateLayers | StateUserProgram | StatePerVertexPointSize | StateVertexSnippets
	if !ctx.feat.BuiltinPointSizeUniform {
		mask |= StateNonZeroPointSize
	}
	return mask
}

// VertexLayerMask returns the layer state that affects the generated vertex shader.
func (ctx *Context) VertexLayerMask() LayerStateBit {
	return LayerUnit | LayerTextureType | LayerVertexSnippets
}

// FragmentStateMask returns the pipeline state that affects the generated fragment shader.
func (ctx *Context) FragmentStateMask() StateBit {
	mask := StateLayers | StateUserProgram | StateFragmentSnippets
	if !ctx.feat.NativeAlphaTest {
		mask |= StateAlphaFunc
	}
	return mask
}

// FragmentLayerMask returns the layer state that affects the generated fragment shader.
func (ctx *Context) FragmentLayerMask() LayerStateBit {
	return LayerUnit | LayerTextureType | LayerCombine | LayerPointSpriteCoords | LayerFragmentSnippets
}
