package glpipe

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/gldriver"
	"github.com/soypat/glpipe/sampler"
	"github.com/soypat/glpipe/uniform"
)

var (
	replaceTexture = glbuild.Combine{
		Func: glbuild.CombineReplace,
		Src:  [3]glbuild.CombineSource{glbuild.SourceTexture},
	}
	replaceTextureAlpha = glbuild.Combine{
		Func: glbuild.CombineReplace,
		Src:  [3]glbuild.CombineSource{glbuild.SourceTexture},
		Op:   [3]glbuild.CombineOp{glbuild.OpSrcAlpha},
	}
)

func newTestContext(feat gldriver.Features, debug DebugFlags) (*Context, *gldriver.Recorder, *bytes.Buffer) {
	rec := gldriver.NewRecorder(feat)
	var logbuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logbuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewContext(rec, Config{Logger: log, Debug: debug}), rec, &logbuf
}

func mustFlush(t *testing.T, ctx *Context, p *Pipeline) {
	t.Helper()
	if err := ctx.FlushPipeline(p); err != nil {
		t.Fatal(err)
	}
}

func fragmentSource(ctx *Context, rec *gldriver.Recorder, p *Pipeline) string {
	return rec.ShaderSource(ctx.Fragment().Shader(p))
}

func vertexSource(ctx *Context, rec *gldriver.Recorder, p *Pipeline) string {
	return rec.ShaderSource(ctx.Vertex().Shader(p))
}

func compiles(ctx *Context) (vertex, fragment int) {
	s := ctx.Stats()
	return s.VertexCompiles, s.FragmentCompiles
}

func TestIdenticalPipelinesCompileOnce(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	newPipeline := func() *Pipeline {
		p := ctx.NewPipeline()
		p.SetLayerCombine(0, replaceTexture, replaceTextureAlpha)
		p.AddLayer(1)
		return p
	}
	p1, p2 := newPipeline(), newPipeline()
	mustFlush(t, ctx, p1)
	mustFlush(t, ctx, p2)
	vc, fc := compiles(ctx)
	if vc != 1 || fc != 1 {
		t.Errorf("want one compile per stage, got vertex=%d fragment=%d", vc, fc)
	}
	if ctx.Fragment().Shader(p1) != ctx.Fragment().Shader(p2) {
		t.Error("identical pipelines do not share the fragment shader")
	}
	if got := ctx.Stats().Links; got != 1 {
		t.Errorf("want one link, got %d", got)
	}
	if rec.Links != 1 {
		t.Errorf("driver saw %d links", rec.Links)
	}
}

func TestDisableProgramCaches(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, DebugDisableProgramCaches)
	p1 := ctx.NewPipeline()
	p1.AddLayer(0)
	p2 := ctx.NewPipeline()
	p2.AddLayer(0)
	mustFlush(t, ctx, p1)
	mustFlush(t, ctx, p2)
	if vc, fc := compiles(ctx); vc != 2 || fc != 2 {
		t.Errorf("unrelated pipelines must not share without caches, got vertex=%d fragment=%d", vc, fc)
	}
	// Copies still share through their ancestor.
	c := p1.Copy()
	c.SetColor(1, 0, 0, 1)
	mustFlush(t, ctx, c)
	if vc, fc := compiles(ctx); vc != 2 || fc != 2 {
		t.Errorf("copy recompiled, got vertex=%d fragment=%d", vc, fc)
	}
}

func TestInvalidation(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	mustFlush(t, ctx, p)

	p.SetColor(0.5, 0.5, 0.5, 1)
	p.SetLayerConstant(0, 1, 0, 0, 1)
	mustFlush(t, ctx, p)
	if vc, fc := compiles(ctx); vc != 1 || fc != 1 {
		t.Fatalf("state not affecting codegen caused a recompile: vertex=%d fragment=%d", vc, fc)
	}

	p.SetLayerCombine(0, replaceTexture, replaceTextureAlpha)
	mustFlush(t, ctx, p)
	if vc, fc := compiles(ctx); vc != 1 || fc != 2 {
		t.Fatalf("combine change: want vertex=1 fragment=2, got vertex=%d fragment=%d", vc, fc)
	}

	p.AddLayer(1)
	mustFlush(t, ctx, p)
	if vc, fc := compiles(ctx); vc != 2 || fc != 3 {
		t.Fatalf("layer added: want vertex=2 fragment=3, got vertex=%d fragment=%d", vc, fc)
	}
}

func TestDeadLayerElimination(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	p.SetLayerCombine(1, replaceTexture, replaceTextureAlpha)
	mustFlush(t, ctx, p)
	src := fragmentSource(ctx, rec, p)
	for _, unwanted := range []string{"cogl_layer0", "cogl_texel0", "cogl_texture_lookup0"} {
		if strings.Contains(src, unwanted) {
			t.Errorf("fragment source contains code for unused layer: %q", unwanted)
		}
	}
	for _, want := range []string{
		"  cogl_layer.rgba = (cogl_texel1.rgba);\n",
		"  cogl_color_out = cogl_layer1;\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("fragment source missing %q", want)
		}
	}
}

func TestReplaceThenModulate(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.SetLayerCombine(0, replaceTexture, replaceTextureAlpha)
	p.AddLayer(1)
	mustFlush(t, ctx, p)
	src := fragmentSource(ctx, rec, p)
	for _, want := range []string{
		"uniform sampler2D cogl_sampler0;\n",
		"uniform sampler2D cogl_sampler1;\n",
		"  cogl_layer.rgba = (cogl_texel0.rgba);\n",
		"  cogl_layer.rgba = (cogl_layer0.rgba) * (cogl_texel1.rgba);\n",
		"  cogl_texel1 = cogl_texture_lookup1 (cogl_sampler1, cogl_tex_coord1_in);\n",
		"  return texture2D (tex, coords.st);\n",
		"  cogl_color_out = cogl_layer1;\n",
		"varying vec4 _cogl_tex_coord[2];\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("fragment source missing %q", want)
		}
	}
	first := strings.Index(src, "  cogl_layer0 = cogl_generate_layer0 ();\n")
	second := strings.Index(src, "  cogl_layer1 = cogl_generate_layer1 ();\n")
	if first < 0 || second < 0 || first > second {
		t.Errorf("layer 0 must be computed before layer 1, got positions %d and %d", first, second)
	}
	if !strings.HasPrefix(src, "#version 110\n") {
		t.Errorf("unexpected version directive: %q", src[:min(len(src), 16)])
	}

	vsrc := vertexSource(ctx, rec, p)
	for _, want := range []string{
		"  cogl_tex_coord0_out = cogl_transform_layer0 (cogl_texture_matrix0, cogl_tex_coord0_in);\n",
		"  cogl_tex_coord1_out = cogl_transform_layer1 (cogl_texture_matrix1, cogl_tex_coord1_in);\n",
		"#define cogl_texture_matrix1 cogl_texture_matrix[1]\n",
		"  cogl_vertex_hook ();\n",
	} {
		if !strings.Contains(vsrc, want) {
			t.Errorf("vertex source missing %q", want)
		}
	}
	if strings.Contains(vsrc, "_cogl_flip_vector") {
		t.Error("flip vector emitted without vertex snippets")
	}
}

func TestMissingLayerSubstitutesWhite(t *testing.T) {
	ctx, rec, logbuf := newTestContext(gldriver.Features{}, DebugDisableProgramCaches)
	readMissing := glbuild.Combine{
		Func: glbuild.CombineModulate,
		Src:  [3]glbuild.CombineSource{glbuild.SourceTexture, glbuild.SourceLayer(7)},
	}
	for i := 0; i < 2; i++ {
		p := ctx.NewPipeline()
		p.SetLayerCombine(0, readMissing, readMissing)
		mustFlush(t, ctx, p)
		src := fragmentSource(ctx, rec, p)
		if !strings.Contains(src, "(cogl_texel0.rgba) * (vec4 (1.0, 1.0, 1.0, 1.0).rgba)") {
			t.Errorf("missing layer not replaced by white:\n%s", src)
		}
	}
	if n := strings.Count(logbuf.String(), "substituting white"); n != 1 {
		t.Errorf("want exactly one warning, got %d:\n%s", n, logbuf.String())
	}
	// A different missing layer is a distinct occurrence.
	readOther := readMissing
	readOther.Src[1] = glbuild.SourceLayer(9)
	p := ctx.NewPipeline()
	p.SetLayerCombine(0, readOther, readOther)
	mustFlush(t, ctx, p)
	if n := strings.Count(logbuf.String(), "substituting white"); n != 2 {
		t.Errorf("want a second warning for layer 9, got %d:\n%s", n, logbuf.String())
	}
}

func TestDot3RGBAIgnoresAlphaCombine(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	dot3 := glbuild.Combine{
		Func: glbuild.CombineDot3RGBA,
		Src:  [3]glbuild.CombineSource{glbuild.SourceTexture, glbuild.SourcePrimaryColor},
	}
	alpha := glbuild.Combine{
		Func: glbuild.CombineReplace,
		Src:  [3]glbuild.CombineSource{glbuild.SourceConstant},
		Op:   [3]glbuild.CombineOp{glbuild.OpSrcAlpha},
	}
	p.SetLayerCombine(0, dot3, alpha)
	mustFlush(t, ctx, p)
	src := fragmentSource(ctx, rec, p)
	if !strings.Contains(src, "  cogl_layer.rgba = vec4(4.0 * (((cogl_texel0.r) - 0.5) * ((cogl_color_in.r) - 0.5)") {
		t.Errorf("DOT3_RGBA not emitted as a single rgba pass:\n%s", src)
	}
	if strings.Contains(src, "cogl_layer.a = ") {
		t.Error("alpha combine must be ignored when the RGB function is DOT3_RGBA")
	}

	// DOT3_RGB keeps a separate alpha pass.
	q := ctx.NewPipeline()
	dot3.Func = glbuild.CombineDot3RGB
	q.SetLayerCombine(0, dot3, alpha)
	mustFlush(t, ctx, q)
	src = fragmentSource(ctx, rec, q)
	if !strings.Contains(src, "  cogl_layer.a = (_cogl_layer_constant_0.a);\n") {
		t.Errorf("DOT3_RGB must keep the alpha combine:\n%s", src)
	}
}

func TestOutOfMemory(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	rec.OutOfMemory = true
	err := ctx.FlushPipeline(p)
	if !errors.Is(err, gldriver.ErrOutOfMemory) {
		t.Fatalf("want ErrOutOfMemory, got %v", err)
	}
	rec.OutOfMemory = false
	mustFlush(t, ctx, p)
	if ctx.Vertex().Shader(p) == 0 || ctx.Fragment().Shader(p) == 0 {
		t.Error("shaders not generated after recovering from out of memory")
	}
}

func TestCompileFailureIsLogged(t *testing.T) {
	ctx, rec, logbuf := newTestContext(gldriver.Features{}, 0)
	rec.FailCompile = func(typ gldriver.ShaderType, _ string) bool { return typ == gldriver.FragmentShader }
	p := ctx.NewPipeline()
	p.AddLayer(0)
	mustFlush(t, ctx, p)
	if ctx.Fragment().Shader(p) == 0 {
		t.Error("failed shader handle must be kept")
	}
	out := logbuf.String()
	if !strings.Contains(out, "shader compilation failed") || !strings.Contains(out, "rejected by recorder") {
		t.Errorf("compile failure not logged:\n%s", out)
	}
	// The failed shader is kept so flushing again does not retry.
	mustFlush(t, ctx, p)
	if _, fc := compiles(ctx); fc != 1 {
		t.Errorf("want 1 fragment compile, got %d", fc)
	}
}

func TestShowSource(t *testing.T) {
	ctx, _, logbuf := newTestContext(gldriver.Features{}, DebugShowSource|DebugDisableTexturing)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	mustFlush(t, ctx, p)
	out := logbuf.String()
	if strings.Count(out, "compiling shader") != 2 {
		t.Errorf("want both stages logged:\n%s", out)
	}
	if !strings.Contains(out, "return vec4 (1.0, 1.0, 1.0, 1.0);") {
		t.Error("texturing not disabled")
	}
}

func TestPipelineUniformFlushesOnlyChanges(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddSnippet(glbuild.Snippet{
		Hook:         glbuild.HookFragment,
		Declarations: "uniform float u_fade;\n",
		Post:         "  cogl_color_out.a *= u_fade;\n",
	})
	var v uniform.BoxedValue
	v.SetFloat(0.5)
	p.SetUniform("u_fade", &v)
	mustFlush(t, ctx, p)
	n := len(rec.Uploads)
	if n == 0 {
		t.Fatal("nothing uploaded")
	}

	mustFlush(t, ctx, p)
	if len(rec.Uploads) != n {
		t.Fatalf("unchanged flush uploaded %d values", len(rec.Uploads)-n)
	}

	v.SetFloat(0.25)
	p.SetUniform("u_fade", &v)
	mustFlush(t, ctx, p)
	uploads := rec.Uploads[n:]
	if len(uploads) != 1 || uploads[0].Kind != gldriver.UploadFloat || uploads[0].Floats[0] != 0.25 {
		t.Fatalf("want a single upload of 0.25, got %+v", uploads)
	}
	if vc, fc := compiles(ctx); vc != 1 || fc != 1 {
		t.Errorf("uniform change recompiled: vertex=%d fragment=%d", vc, fc)
	}
}

func TestAlphaTestEmulation(t *testing.T) {
	tests := []struct {
		fn   AlphaFunc
		want string
	}{
		{AlphaLess, "  if (cogl_color_out.a >= _cogl_alpha_test_ref)\n    discard;\n"},
		{AlphaEqual, "  if (cogl_color_out.a != _cogl_alpha_test_ref)\n    discard;\n"},
		{AlphaLEqual, "  if (cogl_color_out.a > _cogl_alpha_test_ref)\n    discard;\n"},
		{AlphaGreater, "  if (cogl_color_out.a <= _cogl_alpha_test_ref)\n    discard;\n"},
		{AlphaNotEqual, "  if (cogl_color_out.a == _cogl_alpha_test_ref)\n    discard;\n"},
		{AlphaGEqual, "  if (cogl_color_out.a < _cogl_alpha_test_ref)\n    discard;\n"},
		{AlphaNever, "  discard;\n"},
	}
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	for _, test := range tests {
		p := ctx.NewPipeline()
		p.SetAlphaTest(test.fn, 0.5)
		mustFlush(t, ctx, p)
		src := fragmentSource(ctx, rec, p)
		if !strings.Contains(src, test.want) {
			t.Errorf("%s: fragment source missing %q", test.fn, test.want)
		}
	}

	p := ctx.NewPipeline()
	p.SetAlphaTest(AlphaAlways, 0.5)
	mustFlush(t, ctx, p)
	if strings.Contains(fragmentSource(ctx, rec, p), "discard") {
		t.Error("ALWAYS must not discard")
	}

	native, rec2, _ := newTestContext(gldriver.Features{NativeAlphaTest: true}, 0)
	q := native.NewPipeline()
	q.SetAlphaTest(AlphaLess, 0.5)
	mustFlush(t, native, q)
	if strings.Contains(fragmentSource(native, rec2, q), "discard") {
		t.Error("native alpha test must not be emulated")
	}
}

func TestAlphaReferenceChangeDoesNotRecompile(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.SetAlphaTest(AlphaGreater, 0.1)
	mustFlush(t, ctx, p)
	p.SetAlphaTest(AlphaGreater, 0.9)
	mustFlush(t, ctx, p)
	if _, fc := compiles(ctx); fc != 1 {
		t.Errorf("reference change recompiled: %d fragment compiles", fc)
	}
}

func TestPointSpriteCoords(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.SetLayerPointSpriteCoords(0, true)
	mustFlush(t, ctx, p)
	src := fragmentSource(ctx, rec, p)
	if !strings.HasPrefix(src, "#version 120\n") {
		t.Errorf("point sprites require GLSL 1.20, got %q", src[:min(len(src), 16)])
	}
	if !strings.Contains(src, "cogl_texture_lookup0 (cogl_sampler0, vec4 (gl_PointCoord, 0.0, 1.0));") {
		t.Errorf("point sprite lookup missing:\n%s", src)
	}

	es, rec2, _ := newTestContext(gldriver.Features{Embedded: true}, 0)
	q := es.NewPipeline()
	q.SetLayerPointSpriteCoords(0, true)
	mustFlush(t, es, q)
	src = fragmentSource(es, rec2, q)
	if !strings.HasPrefix(src, "#version 100\n\nprecision highp float;\n") {
		t.Errorf("embedded profile keeps its version, got %q", src[:min(len(src), 40)])
	}
}

func TestPointSize(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.SetPointSize(2)
	mustFlush(t, ctx, p)
	src := vertexSource(ctx, rec, p)
	if !strings.Contains(src, "uniform float cogl_point_size_in;\n") ||
		!strings.Contains(src, "  cogl_point_size_out = cogl_point_size_in;\n") {
		t.Errorf("point size uniform not propagated:\n%s", src)
	}
	// Changing a non zero size keeps the shader.
	p.SetPointSize(3)
	mustFlush(t, ctx, p)
	if vc, _ := compiles(ctx); vc != 1 {
		t.Errorf("point size change recompiled: %d vertex compiles", vc)
	}

	p.SetPerVertexPointSize(true)
	mustFlush(t, ctx, p)
	src = vertexSource(ctx, rec, p)
	for _, want := range []string{
		"attribute float cogl_point_size_in;\n",
		"void\ncogl_real_point_size_calculation ()\n",
		"  cogl_point_size_calculation ();\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("per-vertex point size source missing %q", want)
		}
	}

	builtin, rec2, _ := newTestContext(gldriver.Features{BuiltinPointSizeUniform: true}, 0)
	q := builtin.NewPipeline()
	q.SetPointSize(2)
	mustFlush(t, builtin, q)
	if strings.Contains(vertexSource(builtin, rec2, q), "cogl_point_size_in") {
		t.Error("builtin point size must not be copied in the shader")
	}
}

func TestVertexSnippetsFlipVector(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddSnippet(glbuild.Snippet{
		Hook: glbuild.HookVertex,
		Post: "  cogl_position_out.x += 1.0;\n",
	})
	mustFlush(t, ctx, p)
	src := vertexSource(ctx, rec, p)
	for _, want := range []string{
		"uniform vec4 _cogl_flip_vector;\n",
		"  cogl_position_out *= _cogl_flip_vector;\n",
		"void\ncogl_vertex_hook ()\n{\n  cogl_generated_source ();\n  cogl_position_out.x += 1.0;\n}\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("vertex source missing %q:\n%s", want, src)
		}
	}
}

func TestLayerFragmentReplaceSnippet(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayerSnippet(0, glbuild.Snippet{
		Hook:    glbuild.HookLayerFragment,
		Replace: "  cogl_layer = vec4 (0.0, 1.0, 0.0, 1.0);\n",
	})
	mustFlush(t, ctx, p)
	src := fragmentSource(ctx, rec, p)
	if strings.Contains(src, "cogl_real_generate_layer0") {
		t.Error("replaced layer still generates its combine code")
	}
	if strings.Contains(src, "cogl_texel0") {
		t.Error("replaced layer still samples its texture")
	}
	if !strings.Contains(src, "vec4\ncogl_generate_layer0 ()\n{\n  vec4 cogl_layer;\n\n  cogl_layer = vec4 (0.0, 1.0, 0.0, 1.0);\n  return cogl_layer;\n}\n") {
		t.Errorf("replace snippet not emitted:\n%s", src)
	}
}

func TestCodegenCounts(t *testing.T) {
	type count struct {
		vertex bool
		substr string
		n      int
	}
	for _, tc := range []struct {
		name  string
		setup func(p *Pipeline)
		want  []count
	}{
		{
			name: "texel sampled once per unit",
			setup: func(p *Pipeline) {
				p.AddLayer(0)
				p.SetLayerCombine(1, glbuild.Combine{
					Func: glbuild.CombineInterpolate,
					Src:  [3]glbuild.CombineSource{glbuild.SourceTexture, glbuild.SourceLayer(0), glbuild.SourceTexture},
				}, glbuild.DefaultAlphaCombine)
			},
			want: []count{
				{substr: "cogl_texel0 = ", n: 1},
				{substr: "cogl_texel1 = ", n: 1},
				{substr: "vec4 cogl_texel0;\n", n: 1},
				{substr: "vec4 cogl_texel1;\n", n: 1},
			},
		},
		{
			name: "texture lookup replaced",
			setup: func(p *Pipeline) {
				p.AddLayerSnippet(0, glbuild.Snippet{
					Hook:    glbuild.HookTextureLookup,
					Replace: "  cogl_texel = vec4 (0.5);\n",
				})
			},
			want: []count{
				{substr: "cogl_real_texture_lookup0", n: 0},
				{substr: "vec4\ncogl_texture_lookup0 (", n: 1},
				{substr: "  cogl_texel = vec4 (0.5);\n", n: 1},
			},
		},
		{
			name: "fragment globals",
			setup: func(p *Pipeline) {
				p.AddSnippet(glbuild.Snippet{Hook: glbuild.HookFragmentGlobals, Declarations: "uniform float u_fglobal;\n"})
			},
			want: []count{
				{substr: "uniform float u_fglobal;\n", n: 1},
				{vertex: true, substr: "u_fglobal", n: 0},
			},
		},
		{
			name: "vertex globals",
			setup: func(p *Pipeline) {
				p.AddSnippet(glbuild.Snippet{Hook: glbuild.HookVertexGlobals, Declarations: "uniform float u_vglobal;\n"})
			},
			want: []count{
				{vertex: true, substr: "uniform float u_vglobal;\n", n: 1},
				{substr: "u_vglobal", n: 0},
			},
		},
		{
			name: "point size chain",
			setup: func(p *Pipeline) {
				p.SetPerVertexPointSize(true)
				p.AddSnippet(glbuild.Snippet{Hook: glbuild.HookPointSize, Post: "  cogl_point_size_out *= 2.0;\n"})
			},
			want: []count{
				{vertex: true, substr: "attribute float cogl_point_size_in;\n", n: 1},
				{vertex: true, substr: "void\ncogl_real_point_size_calculation ()\n", n: 1},
				{vertex: true, substr: "void\ncogl_point_size_calculation ()\n", n: 1},
				{vertex: true, substr: "  cogl_point_size_calculation ();\n", n: 1},
				{vertex: true, substr: "  cogl_point_size_out *= 2.0;\n", n: 1},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
			p := ctx.NewPipeline()
			tc.setup(p)
			mustFlush(t, ctx, p)
			frag, vert := fragmentSource(ctx, rec, p), vertexSource(ctx, rec, p)
			for _, c := range tc.want {
				src := frag
				if c.vertex {
					src = vert
				}
				if got := strings.Count(src, c.substr); got != c.n {
					t.Errorf("want %d of %q (vertex=%v), got %d", c.n, c.substr, c.vertex, got)
				}
			}
			if t.Failed() {
				t.Logf("vertex:\n%s\nfragment:\n%s", vert, frag)
			}
		})
	}
}

func TestUserProgram(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	prog := ctx.NewProgram()
	sh := NewShader(gldriver.FragmentShader, "uniform float u_gray;\nvoid main () { cogl_color_out = vec4 (u_gray); }\n")
	prog.AttachShader(sh)
	loc := prog.UniformLocation("u_gray")
	prog.SetUniformFloat(loc, 1, 1, []float32{0.25})

	p := ctx.NewPipeline()
	p.AddLayer(0)
	p.SetUserProgram(prog)
	mustFlush(t, ctx, p)
	if ctx.Fragment().Shader(p) != 0 {
		t.Error("fragment code generated despite user fragment shader")
	}
	vs := ctx.Vertex().Shader(p)
	if vs == 0 {
		t.Fatal("vertex code must still be generated")
	}
	linked := rec.Programs[rec.Current]
	if linked == nil || len(linked.Shaders) != 2 {
		t.Fatalf("want user and vertex shader linked, got %+v", linked)
	}
	if src := rec.ShaderSource(linked.Shaders[0]); !strings.Contains(src, "#define cogl_tex_coord0_in _cogl_tex_coord[0]\n") {
		t.Errorf("user shader missing boilerplate:\n%s", src)
	}
	var found bool
	for _, up := range rec.Uploads {
		if up.Kind == gldriver.UploadFloat && up.Size == 1 && up.Floats[0] == 0.25 {
			found = true
		}
	}
	if !found {
		t.Error("user uniform not uploaded")
	}

	// A different layer set recompiles the user shader and relinks.
	p.AddLayer(1)
	mustFlush(t, ctx, p)
	if got := ctx.Stats().Links; got != 2 {
		t.Errorf("want 2 links, got %d", got)
	}
	if src := rec.ShaderSource(rec.Programs[rec.Current].Shaders[0]); !strings.Contains(src, "varying vec4 _cogl_tex_coord[2];\n") {
		t.Errorf("user shader not recompiled for two layers:\n%s", src)
	}
}

func TestUserUniformsAfterProgramNameReuse(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	rec.ReuseProgramNames = true
	prog := ctx.NewProgram()
	prog.AttachShader(NewShader(gldriver.FragmentShader, "uniform float u_gray;\nvoid main () { cogl_color_out = vec4 (u_gray); }\n"))
	prog.SetUniformFloat(prog.UniformLocation("u_gray"), 1, 1, []float32{0.25})

	p := ctx.NewPipeline()
	p.AddLayer(0)
	p.SetUserProgram(prog)
	mustFlush(t, ctx, p)
	first := rec.Current

	p.AddLayer(1) // Relinks, deleting the first program.
	rec.Uploads = rec.Uploads[:0]
	mustFlush(t, ctx, p)
	if rec.Current != first {
		t.Fatalf("driver did not reuse program name: first %d, relinked %d", first, rec.Current)
	}
	if got := ctx.Stats().Links; got != 2 {
		t.Fatalf("want 2 links, got %d", got)
	}
	var uploaded bool
	for _, up := range rec.Uploads {
		if up.Kind == gldriver.UploadFloat && up.Size == 1 && up.Floats[0] == 0.25 {
			uploaded = true
		}
	}
	if !uploaded {
		t.Errorf("u_gray not uploaded to relinked program %d", rec.Current)
	}
}

func TestModelviewProjectionUpload(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	ctx.SetTransforms(ms3.ScalingMat4(ms3.Vec{X: 2, Y: 2, Z: 2}), ms3.ScalingMat4(ms3.Vec{X: 3, Y: 1, Z: 1}))
	p := ctx.NewPipeline()
	mustFlush(t, ctx, p)
	want := []float32{6, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1}
	for _, up := range rec.Uploads {
		if up.Kind == gldriver.UploadMatrix && slices.Equal(up.Floats, want) {
			return
		}
	}
	t.Errorf("modelview projection product %v not uploaded", want)
}

func TestCopyIsolatedFromParentChanges(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	c := p.Copy()
	mustFlush(t, ctx, c)
	before := fragmentSource(ctx, rec, c)

	p.SetLayerCombine(0, replaceTexture, replaceTextureAlpha)
	rgb, _ := c.Layer(0).Combine()
	if !rgb.Equal(&glbuild.DefaultRGBCombine) {
		t.Fatalf("copy observed parent's layer change: %v", rgb.Func)
	}
	mustFlush(t, ctx, c)
	if fragmentSource(ctx, rec, c) != before {
		t.Error("copy's shader changed")
	}
	if vc, fc := compiles(ctx); vc != 1 || fc != 1 {
		t.Errorf("copy recompiled: vertex=%d fragment=%d", vc, fc)
	}
	mustFlush(t, ctx, p)
	if vc, fc := compiles(ctx); vc != 1 || fc != 2 {
		t.Errorf("parent: want vertex=1 fragment=2, got vertex=%d fragment=%d", vc, fc)
	}
}

func TestLayerCopyOnWrite(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.SetLayerConstant(0, 1, 0, 0, 1)
	c := p.Copy()
	c.SetLayerConstant(0, 0, 1, 0, 1)
	if got := p.Layer(0).Constant(); got != [4]float32{1, 0, 0, 1} {
		t.Errorf("parent layer modified through copy: %v", got)
	}
	if got := c.Layer(0).Constant(); got != [4]float32{0, 1, 0, 1} {
		t.Errorf("copy layer not modified: %v", got)
	}
	if p.Layer(0) == c.Layer(0) {
		t.Error("modified layer still shared")
	}
	c.RemoveLayer(0)
	if c.NumLayers() != 0 || p.NumLayers() != 1 {
		t.Errorf("remove layer: copy has %d layers, parent %d", c.NumLayers(), p.NumLayers())
	}
}

func TestDestroyPrunesSnapshots(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	c := p.Copy()
	p.SetColor(1, 0, 0, 1) // Moves c onto a snapshot sharing p's layer.
	if c.Parent() == p || !c.Parent().snapshot {
		t.Fatal("copy not reparented onto a snapshot")
	}
	if got := c.Color(); got != [4]float32{1, 1, 1, 1} {
		t.Errorf("copy sees parent color change: %v", got)
	}
	l := p.Layer(0)
	c.Destroy()
	p.SetLayerConstant(0, 0, 1, 0, 1)
	if p.Layer(0) != l {
		t.Error("layer cloned after the only other holder was destroyed")
	}
}

func TestFindEquivalentAncestor(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{NativeAlphaTest: true}, 0)
	stateMask, layerMask := ctx.FragmentStateMask(), ctx.FragmentLayerMask()
	r := ctx.NewPipeline()
	r.AddLayer(0)

	c1 := r.Copy()
	c1.SetAlphaTest(AlphaLess, 0.5)
	if got := c1.FindEquivalentAncestor(stateMask, layerMask); got != r {
		t.Error("alpha test with native support must not affect fragment codegen")
	}
	c2 := c1.Copy()
	c2.SetLayerConstant(0, 1, 1, 0, 1)
	if got := c2.FindEquivalentAncestor(stateMask, layerMask); got != r {
		t.Error("layer constant must not affect fragment codegen")
	}
	c3 := c2.Copy()
	c3.SetLayerCombine(0, replaceTexture, replaceTextureAlpha)
	if got := c3.FindEquivalentAncestor(stateMask, layerMask); got != c3 {
		t.Error("combine change must make the pipeline its own authority")
	}
	c4 := c3.Copy()
	c4.SetLayerMatrix(0, ms3.ScalingMat4(ms3.Vec{X: 2, Y: 2, Z: 1}))
	if got := c4.FindEquivalentAncestor(stateMask, layerMask); got != c3 {
		t.Error("search must stop at the pipeline that changed codegen state")
	}
}

func TestFingerprint(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, 0)
	stateMask, layerMask := ctx.FragmentStateMask(), ctx.FragmentLayerMask()
	a := ctx.NewPipeline()
	a.AddLayer(0)
	b := ctx.NewPipeline()
	b.AddLayer(3)
	c := ctx.NewPipeline()
	c.AddLayer(0)
	c.SetLayerConstant(0, 1, 0, 0, 1)
	c.SetColor(0, 0, 0, 1)

	fa := a.Fingerprint(nil, stateMask, layerMask)
	if bytes.Equal(fa, b.Fingerprint(nil, stateMask, layerMask)) {
		t.Error("layer index must change the fingerprint")
	}
	if !bytes.Equal(fa, c.Fingerprint(nil, stateMask, layerMask)) {
		t.Error("state outside the masks changed the fingerprint")
	}
}

func TestSamplerBinding(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{SamplerObjects: true}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	p.SetLayerWrapModes(1, sampler.WrapRepeat, sampler.WrapRepeat, sampler.WrapRepeat)
	mustFlush(t, ctx, p)
	s0, s1 := p.Layer(0).Sampler(), p.Layer(1).Sampler()
	if rec.BoundSamplers[0] != s0.Handle || rec.BoundSamplers[1] != s1.Handle {
		t.Errorf("bound samplers %v, want %d and %d", rec.BoundSamplers, s0.Handle, s1.Handle)
	}
	if s0.Handle == s1.Handle {
		t.Error("different wrap modes share a sampler object")
	}
	if vc, fc := compiles(ctx); vc != 1 || fc != 1 {
		t.Errorf("sampler state affected codegen: vertex=%d fragment=%d", vc, fc)
	}
}

func TestContextDestroy(t *testing.T) {
	ctx, rec, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddLayer(0)
	q := p.Copy()
	q.SetLayerCombine(0, replaceTexture, replaceTextureAlpha)
	mustFlush(t, ctx, p)
	mustFlush(t, ctx, q)
	if rec.LiveShaders() != 3 {
		t.Fatalf("want 3 live shaders, got %d", rec.LiveShaders())
	}
	q.Destroy()
	ctx.Destroy()
	if n := rec.LiveShaders(); n != 0 {
		t.Errorf("%d shaders leaked", n)
	}
	for id, prog := range rec.Programs {
		if !prog.Deleted {
			t.Errorf("program %d leaked", id)
		}
	}
	s := ctx.Stats()
	if s.VertexStates != 0 || s.FragmentStates != 0 || s.Programs != 0 {
		t.Errorf("state left after destroy: %+v", s)
	}
}

func TestStateBitString(t *testing.T) {
	if got := (StateLayers | StateUserProgram).String(); got != "layers|user-program" {
		t.Errorf("got %q", got)
	}
	if got := StateBit(0).String(); got != "none" {
		t.Errorf("got %q", got)
	}
}

func TestAddSnippetRoutesByHook(t *testing.T) {
	ctx, _, _ := newTestContext(gldriver.Features{}, 0)
	p := ctx.NewPipeline()
	p.AddSnippet(glbuild.Snippet{Hook: glbuild.HookVertexTransform, Pre: "  // v\n"})
	p.AddSnippet(glbuild.Snippet{Hook: glbuild.HookFragment, Pre: "  // f\n"})
	if len(p.VertexSnippets()) != 1 || len(p.FragmentSnippets()) != 1 {
		t.Errorf("want one snippet per stage, got vertex=%d fragment=%d", len(p.VertexSnippets()), len(p.FragmentSnippets()))
	}
	for _, h := range []glbuild.Hook{glbuild.HookTextureCoordTransform, glbuild.HookLayerFragment, glbuild.HookTextureLookup} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: layer hook accepted at pipeline level", h)
				}
			}()
			p.AddSnippet(glbuild.Snippet{Hook: h})
		}()
	}
}
