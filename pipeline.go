package glpipe

import (
	"slices"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/uniform"
)

// StateBit identifies a group of pipeline state. Change notifications and
// authority queries are expressed as masks of StateBit.
type StateBit uint32

const (
	StateColor StateBit = 1 << iota
	// StateLayers is the set of layers. It is only reported in change
	// notifications when the number of layers changes; edits to a layer are
	// reported through layer notifications instead.
	StateLayers
	StateAlphaFunc
	StateAlphaFuncReference
	StateUserProgram
	StatePointSize
	// StateNonZeroPointSize changes when the point size switches between
	// zero and a positive value.
	StateNonZeroPointSize
	StatePerVertexPointSize
	StateVertexSnippets
	StateFragmentSnippets
	StateUniforms

	stateAll = StateUniforms<<1 - 1
)

var stateBitNames = [...]string{
	"color", "layers", "alpha-func", "alpha-func-reference", "user-program",
	"point-size", "non-zero-point-size", "per-vertex-point-size",
	"vertex-snippets", "fragment-snippets", "uniforms",
}

func (s StateBit) String() string {
	if s == 0 {
		return "none"
	}
	var b []byte
	for i, name := range stateBitNames {
		if s&(1<<i) == 0 {
			continue
		}
		if len(b) > 0 {
			b = append(b, '|')
		}
		b = append(b, name...)
	}
	if extra := s &^ stateAll; extra != 0 {
		if len(b) > 0 {
			b = append(b, '|')
		}
		b = append(b, "0x"...)
		b = strconv.AppendUint(b, uint64(extra), 16)
	}
	return string(b)
}

// AlphaFunc is the comparison used by the alpha test. Values match the GL enums.
type AlphaFunc uint32

const (
	AlphaNever    AlphaFunc = 0x0200
	AlphaLess     AlphaFunc = 0x0201
	AlphaEqual    AlphaFunc = 0x0202
	AlphaLEqual   AlphaFunc = 0x0203
	AlphaGreater  AlphaFunc = 0x0204
	AlphaNotEqual AlphaFunc = 0x0205
	AlphaGEqual   AlphaFunc = 0x0206
	AlphaAlways   AlphaFunc = 0x0207
)

func (af AlphaFunc) String() string {
	switch af {
	case AlphaNever:
		return "never"
	case AlphaLess:
		return "less"
	case AlphaEqual:
		return "equal"
	case AlphaLEqual:
		return "lequal"
	case AlphaGreater:
		return "greater"
	case AlphaNotEqual:
		return "notequal"
	case AlphaGEqual:
		return "gequal"
	case AlphaAlways:
		return "always"
	}
	return "AlphaFunc(0x" + strconv.FormatUint(uint64(af), 16) + ")"
}

type namedUniform struct {
	name  string
	value uniform.BoxedValue
}

// pipelineState holds the value of every state group. A pipeline only
// stores meaningful values for the groups set in its differences mask.
type pipelineState struct {
	color              [4]float32
	alphaFunc          AlphaFunc
	alphaRef           float32
	userProgram        *Program
	pointSize          float32
	perVertexPointSize bool
	vertexSnippets     []glbuild.Snippet
	fragmentSnippets   []glbuild.Snippet
	uniforms           []namedUniform
}

func (ps *pipelineState) clone() pipelineState {
	c := *ps
	c.vertexSnippets = slices.Clone(ps.vertexSnippets)
	c.fragmentSnippets = slices.Clone(ps.fragmentSnippets)
	c.uniforms = cloneUniforms(ps.uniforms)
	return c
}

func cloneUniforms(src []namedUniform) []namedUniform {
	if src == nil {
		return nil
	}
	dst := make([]namedUniform, len(src))
	for i := range src {
		dst[i].name = src[i].name
		uniform.Copy(&dst[i].value, &src[i].value)
	}
	return dst
}

// Pipeline is a declarative description of how to render a primitive:
// ordered texture layers with their combine functions, snippets, alpha test,
// point size and uniform values.
//
// Pipelines form a copy-on-write tree. [Pipeline.Copy] returns a child that
// inherits every state group from its ancestors until the group is set on
// the child. Modifying a pipeline never affects the values seen by its
// copies. Pipelines are not safe for concurrent use.
type Pipeline struct {
	ctx         *Context
	parent      *Pipeline
	children    []*Pipeline
	differences StateBit
	state       pipelineState
	// layers is sorted by index and only valid when differences has StateLayers.
	layers []*Layer
	// snapshot is set on pipelines created internally to preserve state for
	// children of a modified pipeline.
	snapshot bool
}

// NewPipeline returns a root pipeline with default state: white color, no
// layers, alpha test always passing and zero point size.
func (ctx *Context) NewPipeline() *Pipeline {
	return &Pipeline{
		ctx:         ctx,
		differences: stateAll,
		state: pipelineState{
			color:     [4]float32{1, 1, 1, 1},
			alphaFunc: AlphaAlways,
		},
	}
}

// Copy returns a new pipeline inheriting all of p's state.
func (p *Pipeline) Copy() *Pipeline {
	c := &Pipeline{ctx: p.ctx, parent: p}
	p.children = append(p.children, c)
	return c
}

// Parent returns the pipeline p was copied from or nil for a root pipeline.
func (p *Pipeline) Parent() *Pipeline { return p.parent }

// Destroy releases the shader state attached to p. Copies of p remain valid.
func (p *Pipeline) Destroy() {
	p.ctx.pipelineDestroyed(p)
	if len(p.children) > 0 {
		// Descendants still resolve state through p.
		return
	}
	p.releaseLayers()
	for q := p; q.parent != nil; {
		parent := q.parent
		if i := slices.Index(parent.children, q); i >= 0 {
			parent.children = slices.Delete(parent.children, i, i+1)
		}
		q.parent = nil
		if !parent.snapshot || len(parent.children) > 0 {
			break
		}
		// Snapshots only exist for their children.
		parent.ctx.pipelineDestroyed(parent)
		parent.releaseLayers()
		q = parent
	}
}

func (p *Pipeline) releaseLayers() {
	if p.differences&StateLayers == 0 {
		return
	}
	for _, l := range p.layers {
		l.refs--
	}
	p.layers = nil
}

// authority returns the nearest pipeline, starting at p, that sets any
// state group in mask.
func (p *Pipeline) authority(mask StateBit) *Pipeline {
	a := p
	for a.differences&mask == 0 && a.parent != nil {
		a = a.parent
	}
	return a
}

// own makes p the authority of bit by copying the inherited value.
func (p *Pipeline) own(bit StateBit) {
	if p.differences&bit != 0 {
		return
	}
	a := p.authority(bit)
	switch bit {
	case StateColor:
		p.state.color = a.state.color
	case StateAlphaFunc:
		p.state.alphaFunc = a.state.alphaFunc
	case StateAlphaFuncReference:
		p.state.alphaRef = a.state.alphaRef
	case StateUserProgram:
		p.state.userProgram = a.state.userProgram
	case StatePointSize:
		p.state.pointSize = a.state.pointSize
	case StateNonZeroPointSize:
		// Derived from the point size.
	case StatePerVertexPointSize:
		p.state.perVertexPointSize = a.state.perVertexPointSize
	case StateVertexSnippets:
		p.state.vertexSnippets = slices.Clone(a.state.vertexSnippets)
	case StateFragmentSnippets:
		p.state.fragmentSnippets = slices.Clone(a.state.fragmentSnippets)
	case StateUniforms:
		p.state.uniforms = cloneUniforms(a.state.uniforms)
	case StateLayers:
		p.layers = slices.Clone(a.layers)
		for _, l := range p.layers {
			l.refs++
		}
	default:
		panic("glpipe: own called with invalid state bit " + bit.String())
	}
	p.differences |= bit
}

// preChange must be called before any state of p changes. Layer edits pass
// fromLayer so that stages are only notified through the layer path.
func (p *Pipeline) preChange(change StateBit, fromLayer bool) {
	if len(p.children) > 0 {
		p.reparentChildren()
	}
	if !fromLayer {
		p.ctx.pipelinePreChange(p, change)
	}
}

// reparentChildren moves p's children onto a snapshot of p's current state
// so that modifying p does not change what they inherit.
func (p *Pipeline) reparentChildren() {
	snap := &Pipeline{
		ctx:         p.ctx,
		parent:      p.parent,
		differences: p.differences,
		state:       p.state.clone(),
		children:    p.children,
		snapshot:    true,
	}
	if p.differences&StateLayers != 0 {
		snap.layers = slices.Clone(p.layers)
		for _, l := range snap.layers {
			l.refs++
		}
	}
	for _, c := range snap.children {
		c.parent = snap
	}
	if p.parent != nil {
		p.parent.children = append(p.parent.children, snap)
	}
	p.children = nil
}

// Color returns the pipeline color.
func (p *Pipeline) Color() [4]float32 { return p.authority(StateColor).state.color }

func (p *Pipeline) SetColor(r, g, b, a float32) {
	c := [4]float32{r, g, b, a}
	if p.Color() == c {
		return
	}
	p.preChange(StateColor, false)
	p.own(StateColor)
	p.state.color = c
}

// AlphaTest returns the alpha test function and reference value.
func (p *Pipeline) AlphaTest() (AlphaFunc, float32) {
	return p.authority(StateAlphaFunc).state.alphaFunc, p.authority(StateAlphaFuncReference).state.alphaRef
}

// SetAlphaTest sets the alpha test. Fragments whose alpha fails the
// comparison against ref are discarded. ref is clamped to [0, 1].
func (p *Pipeline) SetAlphaTest(fn AlphaFunc, ref float32) {
	if fn < AlphaNever || fn > AlphaAlways {
		panic("glpipe: invalid alpha function " + fn.String())
	}
	ref = math32.Min(math32.Max(ref, 0), 1)
	oldFn, oldRef := p.AlphaTest()
	var change StateBit
	if oldFn != fn {
		change |= StateAlphaFunc
	}
	if oldRef != ref {
		change |= StateAlphaFuncReference
	}
	if change == 0 {
		return
	}
	p.preChange(change, false)
	if change&StateAlphaFunc != 0 {
		p.own(StateAlphaFunc)
		p.state.alphaFunc = fn
	}
	if change&StateAlphaFuncReference != 0 {
		p.own(StateAlphaFuncReference)
		p.state.alphaRef = ref
	}
}

// PointSize returns the size of points drawn with the pipeline.
func (p *Pipeline) PointSize() float32 { return p.authority(StatePointSize).state.pointSize }

// SetPointSize sets the point size. Negative sizes are clamped to zero.
func (p *Pipeline) SetPointSize(size float32) {
	size = math32.Max(size, 0)
	old := p.PointSize()
	if old == size {
		return
	}
	change := StatePointSize
	if (old > 0) != (size > 0) {
		change |= StateNonZeroPointSize
	}
	p.preChange(change, false)
	p.own(StatePointSize)
	if change&StateNonZeroPointSize != 0 {
		p.own(StateNonZeroPointSize)
	}
	p.state.pointSize = size
}

// PerVertexPointSize reports whether the point size is read from a vertex attribute.
func (p *Pipeline) PerVertexPointSize() bool {
	return p.authority(StatePerVertexPointSize).state.perVertexPointSize
}

func (p *Pipeline) SetPerVertexPointSize(enable bool) {
	if p.PerVertexPointSize() == enable {
		return
	}
	p.preChange(StatePerVertexPointSize, false)
	p.own(StatePerVertexPointSize)
	p.state.perVertexPointSize = enable
}

// UserProgram returns the program replacing generated shaders or nil.
func (p *Pipeline) UserProgram() *Program { return p.authority(StateUserProgram).state.userProgram }

// SetUserProgram attaches a user program. Generated code is skipped for every
// stage the program has a shader for. Pass nil to detach.
func (p *Pipeline) SetUserProgram(prog *Program) {
	if p.UserProgram() == prog {
		return
	}
	p.preChange(StateUserProgram, false)
	p.own(StateUserProgram)
	p.state.userProgram = prog
}

// VertexSnippets returns the pipeline level vertex snippets. The slice must not be modified.
func (p *Pipeline) VertexSnippets() []glbuild.Snippet {
	return p.authority(StateVertexSnippets).state.vertexSnippets
}

// FragmentSnippets returns the pipeline level fragment snippets. The slice must not be modified.
func (p *Pipeline) FragmentSnippets() []glbuild.Snippet {
	return p.authority(StateFragmentSnippets).state.fragmentSnippets
}

// AddSnippet appends a snippet to the vertex or fragment snippet list
// depending on its hook. Layer hooks must be added with [Pipeline.AddLayerSnippet].
func (p *Pipeline) AddSnippet(s glbuild.Snippet) {
	switch {
	case s.Hook == glbuild.HookTextureCoordTransform || s.Hook >= glbuild.HookLayerFragment:
		panic("glpipe: snippet hook " + s.Hook.String() + " must be added to a layer")
	case s.Hook.IsVertex():
		p.preChange(StateVertexSnippets, false)
		p.own(StateVertexSnippets)
		p.state.vertexSnippets = append(p.state.vertexSnippets, s)
	default:
		p.preChange(StateFragmentSnippets, false)
		p.own(StateFragmentSnippets)
		p.state.fragmentSnippets = append(p.state.fragmentSnippets, s)
	}
}

// hasVertexSnippets reports whether any vertex snippet is attached to the
// pipeline or one of its layers.
func (p *Pipeline) hasVertexSnippets() bool {
	if len(p.VertexSnippets()) > 0 {
		return true
	}
	for _, l := range p.Layers() {
		if len(l.vertexSnippets) > 0 {
			return true
		}
	}
	return false
}

// SetUniform sets a custom uniform value uploaded whenever the pipeline is flushed.
func (p *Pipeline) SetUniform(name string, v *uniform.BoxedValue) {
	if name == "" {
		panic("glpipe: empty uniform name")
	}
	if old := p.Uniform(name); old != nil && uniform.Equal(old, v) {
		return
	}
	p.preChange(StateUniforms, false)
	p.own(StateUniforms)
	for i := range p.state.uniforms {
		if p.state.uniforms[i].name == name {
			uniform.Copy(&p.state.uniforms[i].value, v)
			return
		}
	}
	p.state.uniforms = append(p.state.uniforms, namedUniform{name: name})
	uniform.Copy(&p.state.uniforms[len(p.state.uniforms)-1].value, v)
}

// Uniform returns the custom uniform value named name or nil. The value must not be modified.
func (p *Pipeline) Uniform(name string) *uniform.BoxedValue {
	us := p.authority(StateUniforms).state.uniforms
	for i := range us {
		if us[i].name == name {
			return &us[i].value
		}
	}
	return nil
}
