package glpipe

import "github.com/soypat/glpipe/gldriver"

// stateID refers to a slot of a stateArena. The zero value refers to no state.
type stateID uint32

type unitState struct {
	sampled          bool
	constantDeclared bool
}

// pendingLayer is a layer added to a fragment stage during generation.
type pendingLayer struct {
	layer *Layer
	unit  int
	// prev is the position in the pending list of the layer added before,
	// or -1 for the first layer.
	prev int
}

// shaderState is the generated shader of one stage shared by every
// pipeline with equal codegen state.
type shaderState struct {
	refs       int
	shader     uint32
	generating bool

	// Fragment generation scratch.
	units         []unitState
	pending       []pendingLayer
	refPointCoord bool
}

// stateArena stores shader states in a slice and recycles freed slots.
// Slot 0 is never handed out.
type stateArena struct {
	slots []shaderState
	free  []stateID
}

// alloc returns a new state with a single reference. Pointers returned by
// get are invalidated by alloc.
func (a *stateArena) alloc() stateID {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[id] = shaderState{refs: 1}
		return id
	}
	if len(a.slots) == 0 {
		a.slots = append(a.slots, shaderState{})
	}
	a.slots = append(a.slots, shaderState{refs: 1})
	return stateID(len(a.slots) - 1)
}

func (a *stateArena) get(id stateID) *shaderState {
	if id == 0 {
		return nil
	}
	return &a.slots[id]
}

func (a *stateArena) release(id stateID) {
	a.slots[id] = shaderState{}
	a.free = append(a.free, id)
}

// live returns the number of states in use.
func (a *stateArena) live() int {
	if len(a.slots) == 0 {
		return 0
	}
	return len(a.slots) - 1 - len(a.free)
}

// stageCache associates pipelines with the shader state of one stage. The
// association lives in a side table so pipelines carry no per-stage fields.
type stageCache struct {
	ctx       *Context
	typ       gldriver.ShaderType
	arena     stateArena
	owners    map[*Pipeline]stateID
	templates templateCache
}

func (sc *stageCache) init(ctx *Context, typ gldriver.ShaderType) {
	sc.ctx = ctx
	sc.typ = typ
	sc.owners = make(map[*Pipeline]stateID)
}

// state returns the shader state attached to p or nil.
func (sc *stageCache) state(p *Pipeline) *shaderState {
	return sc.arena.get(sc.owners[p])
}

// resolve returns the shader state for p, attaching one if p has none. The
// state is shared with the furthest ancestor generating the same code and,
// unless program caches are disabled, with any pipeline whose codegen state
// has the same fingerprint.
func (sc *stageCache) resolve(p *Pipeline, stateMask StateBit, layerMask LayerStateBit) *shaderState {
	if id, ok := sc.owners[p]; ok {
		return sc.arena.get(id)
	}
	authority := p.FindEquivalentAncestor(stateMask, layerMask)
	id, ok := sc.owners[authority]
	if !ok {
		useTemplates := !sc.ctx.cfg.Debug.Has(DebugDisableProgramCaches)
		var found bool
		if useTemplates {
			sc.templates.scratch = authority.Fingerprint(sc.templates.scratch[:0], stateMask, layerMask)
			id, found = sc.templates.lookup(sc.templates.scratch)
		}
		if found {
			sc.arena.get(id).refs++
		} else {
			id = sc.arena.alloc()
			if useTemplates {
				// The template holds its own reference.
				sc.arena.get(id).refs++
				sc.templates.insert(sc.templates.scratch, id)
			}
		}
		sc.owners[authority] = id
	}
	if authority != p {
		sc.arena.get(id).refs++
		sc.owners[p] = id
	}
	return sc.arena.get(id)
}

// detach drops p's reference to its shader state.
func (sc *stageCache) detach(p *Pipeline) {
	id, ok := sc.owners[p]
	if !ok {
		return
	}
	delete(sc.owners, p)
	sc.unref(id)
}

func (sc *stageCache) unref(id stateID) {
	st := sc.arena.get(id)
	st.refs--
	if st.refs > 0 {
		return
	} else if st.refs < 0 {
		panic("glpipe: shader state released more times than attached")
	}
	sc.deleteShader(st)
	sc.arena.release(id)
}

// deleteShader deletes the compiled shader of st and any program linked with it.
func (sc *stageCache) deleteShader(st *shaderState) {
	if st.shader == 0 {
		return
	}
	sc.ctx.progend.shaderDeleted(st.shader)
	sc.ctx.drv.DeleteShader(st.shader)
	st.shader = 0
}

func (sc *stageCache) destroy() {
	for p := range sc.owners {
		sc.detach(p)
	}
	sc.templates.drain(sc.unref)
}

// Shader returns the compiled shader attached to p, or 0 when p has none
// or uses a user shader for this stage.
func (sc *stageCache) Shader(p *Pipeline) uint32 {
	if st := sc.state(p); st != nil {
		return st.shader
	}
	return 0
}
