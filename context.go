package glpipe

import (
	"fmt"
	"log/slog"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpipe/gldriver"
	"github.com/soypat/glpipe/sampler"
)

// DebugFlags alter code generation and caching for debugging.
type DebugFlags uint8

const (
	// DebugDisableProgramCaches stops unrelated pipelines with equal codegen
	// state from sharing shaders. Copies of a pipeline still share.
	DebugDisableProgramCaches DebugFlags = 1 << iota
	// DebugDisableTexturing makes every texture lookup return opaque white.
	DebugDisableTexturing
	// DebugShowSource logs every shader source before compiling it.
	DebugShowSource
)

// Has reports whether every flag in mask is set.
func (d DebugFlags) Has(mask DebugFlags) bool { return d&mask == mask }

// Config configures a [Context].
type Config struct {
	// Logger receives compile diagnostics. Nil uses the package [Logger].
	Logger *slog.Logger
	Debug  DebugFlags
}

// Stats counts driver work done by a context.
type Stats struct {
	VertexCompiles   int
	FragmentCompiles int
	Links            int
	// Live shader states and cached templates per stage.
	VertexStates, FragmentStates       int
	VertexTemplates, FragmentTemplates int
	Programs                           int
}

// Context owns the shader caches, sampler cache and codegen buffers for one
// GL context. It is not safe for concurrent use.
type Context struct {
	drv      gldriver.Driver
	feat     gldriver.Features
	cfg      Config
	vertex   VertexStage
	fragment FragmentStage
	progend  progend
	samplers *sampler.Cache

	codegen       [2]codegenBuffers
	boilerplate   []byte
	sourceScratch []string
	indices       []int

	warned        map[string]struct{}
	nextProgramID uint64

	modelview, projection ms3.Mat4
	flipY                 bool

	stats Stats
}

// NewContext returns a context generating shaders for drv.
func NewContext(drv gldriver.Driver, cfg Config) *Context {
	identity := ms3.ScalingMat4(ms3.Vec{X: 1, Y: 1, Z: 1})
	ctx := &Context{
		drv:        drv,
		feat:       drv.Features(),
		cfg:        cfg,
		samplers:   sampler.NewCache(drv),
		warned:     make(map[string]struct{}),
		modelview:  identity,
		projection: identity,
	}
	ctx.vertex.init(ctx, gldriver.VertexShader)
	ctx.fragment.init(ctx, gldriver.FragmentShader)
	ctx.progend.init(ctx)
	return ctx
}

// Features returns the driver features the context generates code for.
func (ctx *Context) Features() gldriver.Features { return ctx.feat }

// Samplers returns the sampler cache shared by the context's pipelines.
func (ctx *Context) Samplers() *sampler.Cache { return ctx.samplers }

// Vertex returns the vertex stage.
func (ctx *Context) Vertex() Stage { return &ctx.vertex }

// Fragment returns the fragment stage.
func (ctx *Context) Fragment() Stage { return &ctx.fragment }

// SetTransforms sets the modelview and projection matrices uploaded on the
// next flush. Matrices are row-major as in the geometry package.
func (ctx *Context) SetTransforms(modelview, projection ms3.Mat4) {
	ctx.modelview = modelview
	ctx.projection = projection
}

// SetFlipY flips the Y axis of positions written by vertex snippets, as
// needed when rendering to an offscreen target.
func (ctx *Context) SetFlipY(flip bool) { ctx.flipY = flip }

// FlushPipeline generates or reuses the shaders for p, links them and makes
// the program current with p's uniforms uploaded. The only errors returned
// are resource exhaustion from the driver; compile and link failures are
// logged and rendering carries on with the failed objects.
func (ctx *Context) FlushPipeline(p *Pipeline) error {
	if p.ctx != ctx {
		panic("glpipe: pipeline flushed on a context it was not created by")
	}
	layers := p.Layers()
	for _, stage := range [2]Stage{&ctx.vertex, &ctx.fragment} {
		stage.Start(p, len(layers))
		for _, l := range layers {
			stage.AddLayer(p, l)
		}
		if err := stage.End(p); err != nil {
			return err
		}
	}
	return ctx.progend.flush(p, ctx.vertex.Shader(p), ctx.fragment.Shader(p))
}

// Stats returns counters of the driver work done so far.
func (ctx *Context) Stats() Stats {
	s := ctx.stats
	s.VertexStates = ctx.vertex.arena.live()
	s.FragmentStates = ctx.fragment.arena.live()
	s.VertexTemplates = ctx.vertex.templates.n
	s.FragmentTemplates = ctx.fragment.templates.n
	s.Programs = len(ctx.progend.programs)
	return s
}

// Destroy deletes every shader, program and sampler object owned by the
// context. Pipelines of the context must not be flushed afterwards.
func (ctx *Context) Destroy() {
	ctx.progend.destroy()
	ctx.vertex.destroy()
	ctx.fragment.destroy()
	ctx.samplers.Destroy()
}

func (ctx *Context) logger() *slog.Logger {
	if ctx.cfg.Logger != nil {
		return ctx.cfg.Logger
	}
	return Logger()
}

// warnOnce logs msg at warn level the first time the context sees msg with
// these attributes.
func (ctx *Context) warnOnce(msg string, args ...any) {
	key := msg
	if len(args) > 0 {
		key += fmt.Sprint(args...)
	}
	if _, ok := ctx.warned[key]; ok {
		return
	}
	ctx.warned[key] = struct{}{}
	ctx.logger().Warn(msg, args...)
}

func (ctx *Context) pipelinePreChange(p *Pipeline, change StateBit) {
	ctx.vertex.PreChangeNotify(p, change)
	ctx.fragment.PreChangeNotify(p, change)
}

func (ctx *Context) layerPreChange(owner *Pipeline, l *Layer, change LayerStateBit) {
	ctx.vertex.LayerPreChangeNotify(owner, l, change)
	ctx.fragment.LayerPreChangeNotify(owner, l, change)
}

func (ctx *Context) pipelineDestroyed(p *Pipeline) {
	ctx.vertex.detach(p)
	ctx.fragment.detach(p)
}
