package glpipe

import (
	"strconv"

	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/gldriver"
)

// VertexStage generates the vertex shader: per-layer texture coordinate
// transforms, the position transform and the point size.
type VertexStage struct {
	stageCache
}

func (vs *VertexStage) Type() gldriver.ShaderType { return gldriver.VertexShader }

func (vs *VertexStage) Start(p *Pipeline, numLayers int) {
	ctx := vs.ctx
	st := vs.resolve(p, ctx.VertexStateMask(), ctx.VertexLayerMask())
	if prog := p.UserProgram(); prog != nil && prog.HasShader(gldriver.VertexShader) {
		vs.deleteShader(st)
		return
	}
	if st.shader != 0 {
		return
	}
	st.generating = true
	buf := &ctx.codegen[gldriver.VertexShader]
	buf.reset()

	// Samplers are declared in both stages so user snippets can use them.
	for _, l := range p.Layers() {
		target, _ := l.textureType.TargetString()
		buf.header = glbuild.AppendIndexedUniformDecl(buf.header, "sampler"+target, "cogl_sampler", l.index)
	}
	buf.header = glbuild.AppendSnippetDeclarations(buf.header, p.VertexSnippets(), glbuild.HookVertexGlobals)
	buf.source = append(buf.source, "void\ncogl_generated_source ()\n{\n"...)

	if p.PerVertexPointSize() {
		buf.header = append(buf.header, "attribute float cogl_point_size_in;\n"...)
	} else if !ctx.feat.BuiltinPointSizeUniform && p.PointSize() > 0 {
		buf.header = glbuild.AppendUniformDecl(buf.header, "float", "cogl_point_size_in")
		buf.source = append(buf.source, "  cogl_point_size_out = cogl_point_size_in;\n"...)
	}
}

func (vs *VertexStage) AddLayer(p *Pipeline, l *Layer) {
	st := vs.state(p)
	if st == nil || !st.generating {
		return
	}
	buf := &vs.ctx.codegen[gldriver.VertexShader]
	idx := strconv.Itoa(l.index)
	buf.header = append(buf.header, "vec4\ncogl_real_transform_layer"...)
	buf.header = append(buf.header, idx...)
	buf.header = append(buf.header, " (mat4 matrix, vec4 tex_coord)\n{\n  return matrix * tex_coord;\n}\n"...)
	buf.header = glbuild.AppendSnippetChain(buf.header, l.vertexSnippets, &glbuild.SnippetChain{
		Hook:                     glbuild.HookTextureCoordTransform,
		ChainFunction:            "cogl_real_transform_layer" + idx,
		FinalName:                "cogl_transform_layer" + idx,
		FunctionPrefix:           "cogl_transform_layer" + idx,
		ReturnType:               "vec4",
		ReturnVariable:           "cogl_tex_coord",
		ReturnVariableIsArgument: true,
		Arguments:                "cogl_matrix, cogl_tex_coord",
		ArgumentDeclarations:     "mat4 cogl_matrix, vec4 cogl_tex_coord",
	})

	buf.source = append(buf.source, "  cogl_tex_coord"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, "_out = cogl_transform_layer"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, " (cogl_texture_matrix"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, ", cogl_tex_coord"...)
	buf.source = append(buf.source, idx...)
	buf.source = append(buf.source, "_in);\n"...)
}

func (vs *VertexStage) End(p *Pipeline) error {
	st := vs.state(p)
	if st == nil || !st.generating {
		return nil
	}
	st.generating = false
	ctx := vs.ctx
	buf := &ctx.codegen[gldriver.VertexShader]
	perVertexPointSize := p.PerVertexPointSize()
	snippets := p.VertexSnippets()

	buf.header = append(buf.header, "void\ncogl_real_vertex_transform ()\n{\n"+
		"  cogl_position_out = cogl_modelview_projection_matrix * cogl_position_in;\n}\n"...)
	buf.source = append(buf.source, "  cogl_vertex_transform ();\n"...)
	if perVertexPointSize {
		buf.header = append(buf.header, "void\ncogl_real_point_size_calculation ()\n{\n"+
			"  cogl_point_size_out = cogl_point_size_in;\n}\n"...)
		buf.source = append(buf.source, "  cogl_point_size_calculation ();\n"...)
	}
	buf.source = append(buf.source, "  cogl_color_out = cogl_color_in;\n}\n"...)

	buf.header = glbuild.AppendSnippetChain(buf.header, snippets, &glbuild.SnippetChain{
		Hook:           glbuild.HookVertexTransform,
		ChainFunction:  "cogl_real_vertex_transform",
		FinalName:      "cogl_vertex_transform",
		FunctionPrefix: "cogl_vertex_transform",
	})
	if perVertexPointSize {
		buf.header = glbuild.AppendSnippetChain(buf.header, snippets, &glbuild.SnippetChain{
			Hook:           glbuild.HookPointSize,
			ChainFunction:  "cogl_real_point_size_calculation",
			FinalName:      "cogl_point_size_calculation",
			FunctionPrefix: "cogl_point_size_calculation",
		})
	}
	buf.source = glbuild.AppendSnippetChain(buf.source, snippets, &glbuild.SnippetChain{
		Hook:           glbuild.HookVertex,
		ChainFunction:  "cogl_generated_source",
		FinalName:      "cogl_vertex_hook",
		FunctionPrefix: "cogl_vertex_hook",
	})
	buf.source = append(buf.source, "void\nmain ()\n{\n  cogl_vertex_hook ();\n"...)
	if p.hasVertexSnippets() {
		// Snippets may write cogl_position_out in framebuffer space so the
		// flip for offscreen targets is applied last.
		buf.header = glbuild.AppendUniformDecl(buf.header, "vec4", "_cogl_flip_vector")
		buf.source = append(buf.source, "  cogl_position_out *= _cogl_flip_vector;\n"...)
	}
	buf.source = append(buf.source, "}\n"...)

	ctx.indices = p.LayerIndices(ctx.indices[:0])
	shader, err := ctx.compileShader(gldriver.VertexShader, ctx.indices, 0, buf.header, buf.source)
	if err != nil {
		return err
	}
	st.shader = shader
	return nil
}

func (vs *VertexStage) PreChangeNotify(p *Pipeline, changed StateBit) {
	if changed&vs.ctx.VertexStateMask() != 0 {
		vs.detach(p)
	}
}

func (vs *VertexStage) LayerPreChangeNotify(owner *Pipeline, l *Layer, changed LayerStateBit) {
	if changed&vs.ctx.VertexLayerMask() != 0 {
		vs.detach(owner)
	}
}
