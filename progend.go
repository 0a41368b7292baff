package glpipe

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpipe/uniform"
)

type programKey struct {
	vertex, fragment uint32
	user             *Program
	userAge          uint64
}

type linkedProgram struct {
	handle uint32
	// serial is unique per link; handle may be reused by the driver.
	serial      uint64
	userShaders []uint32
	// builtins holds the uniforms the generated code declares plus the
	// pipeline's custom uniforms.
	builtins uniform.Table
}

// progend links the shaders of both stages and keeps the uniforms of the
// linked program in sync with the flushed pipeline.
type progend struct {
	ctx      *Context
	programs map[programKey]*linkedProgram
	// Uniform names by layer index and by texture unit.
	samplerNames  map[int]string
	constantNames map[int]string
	matrixNames   []string
	value         uniform.BoxedValue
	shaders       []uint32
	nextSerial    uint64
}

func (pe *progend) init(ctx *Context) {
	pe.ctx = ctx
	pe.programs = make(map[programKey]*linkedProgram)
	pe.samplerNames = make(map[int]string)
	pe.constantNames = make(map[int]string)
}

func (pe *progend) flush(p *Pipeline, vertex, fragment uint32) error {
	ctx := pe.ctx
	user := p.UserProgram()
	key := programKey{vertex: vertex, fragment: fragment, user: user}
	if user != nil {
		ctx.indices = p.LayerIndices(ctx.indices[:0])
		if err := user.compile(ctx.indices); err != nil {
			return err
		}
		key.userAge = user.age
	}
	lp, ok := pe.programs[key]
	if !ok {
		var err error
		lp, err = pe.link(key)
		if err != nil {
			return err
		}
	}
	ctx.drv.UseProgram(lp.handle)
	pe.updateBuiltins(p, lp)
	if _, err := lp.builtins.Flush(ctx.drv, lp.handle, lp.serial); err != nil {
		ctx.warnOnce("flushing pipeline uniforms", slog.String("err", err.Error()))
	}
	if user != nil {
		if _, err := user.uniforms.Flush(ctx.drv, lp.handle, lp.serial); err != nil {
			ctx.warnOnce("flushing user program uniforms", slog.String("err", err.Error()))
		}
	}
	return nil
}

func (pe *progend) link(key programKey) (*linkedProgram, error) {
	ctx := pe.ctx
	handle, err := ctx.drv.CreateProgram()
	if err != nil {
		return nil, fmt.Errorf("glpipe: creating program: %w", err)
	}
	pe.nextSerial++
	lp := &linkedProgram{handle: handle, serial: pe.nextSerial}
	if key.user != nil {
		for _, s := range key.user.shaders {
			lp.userShaders = append(lp.userShaders, s.handle)
		}
	}
	pe.shaders = append(pe.shaders[:0], lp.userShaders...)
	if key.vertex != 0 {
		pe.shaders = append(pe.shaders, key.vertex)
	}
	if key.fragment != 0 {
		pe.shaders = append(pe.shaders, key.fragment)
	}
	ok, infoLog := ctx.drv.LinkProgram(handle, pe.shaders)
	ctx.stats.Links++
	if !ok {
		ctx.logger().Warn("program link failed", slog.Uint64("program", uint64(handle)), slog.String("info", infoLog))
	}
	pe.programs[key] = lp
	return lp, nil
}

func (pe *progend) set(t *uniform.Table, name string) {
	t.Set(t.Index(name), &pe.value)
}

func (pe *progend) updateBuiltins(p *Pipeline, lp *linkedProgram) {
	ctx := pe.ctx
	t := &lp.builtins
	for unit, l := range p.Layers() {
		pe.value.SetInt(int32(unit))
		pe.set(t, pe.layerName(pe.samplerNames, "cogl_sampler", l.index))
		pe.value.SetFloatVector(4, 1, l.constant[:])
		pe.set(t, pe.layerName(pe.constantNames, "_cogl_layer_constant_", l.index))
		pe.value.SetMat4(l.matrix)
		pe.set(t, pe.matrixName(unit))
		if ctx.feat.SamplerObjects {
			ctx.drv.BindSampler(unit, l.sampler.Handle)
		}
	}
	_, ref := p.AlphaTest()
	pe.value.SetFloat(ref)
	pe.set(t, "_cogl_alpha_test_ref")
	pe.value.SetFloat(p.PointSize())
	pe.set(t, "cogl_point_size_in")

	flip := [4]float32{1, 1, 1, 1}
	if ctx.flipY {
		flip[1] = -1
	}
	pe.value.SetFloatVector(4, 1, flip[:])
	pe.set(t, "_cogl_flip_vector")

	pe.value.SetMat4(ctx.modelview)
	pe.set(t, "cogl_modelview_matrix")
	pe.value.SetMat4(ctx.projection)
	pe.set(t, "cogl_projection_matrix")
	pe.value.SetMat4(ms3.MulMat4(ctx.projection, ctx.modelview))
	pe.set(t, "cogl_modelview_projection_matrix")

	us := p.authority(StateUniforms).state.uniforms
	for i := range us {
		t.Set(t.Index(us[i].name), &us[i].value)
	}
}

func (pe *progend) layerName(cache map[int]string, prefix string, index int) string {
	name, ok := cache[index]
	if !ok {
		name = prefix + strconv.Itoa(index)
		cache[index] = name
	}
	return name
}

func (pe *progend) matrixName(unit int) string {
	for len(pe.matrixNames) <= unit {
		pe.matrixNames = append(pe.matrixNames, "cogl_texture_matrix["+strconv.Itoa(len(pe.matrixNames))+"]")
	}
	return pe.matrixNames[unit]
}

// shaderDeleted evicts every linked program using shader.
func (pe *progend) shaderDeleted(shader uint32) {
	for key, lp := range pe.programs {
		if key.vertex == shader || key.fragment == shader || slices.Contains(lp.userShaders, shader) {
			pe.deleteProgram(key, lp)
		}
	}
}

func (pe *progend) programDestroyed(user *Program) {
	for key, lp := range pe.programs {
		if key.user == user {
			pe.deleteProgram(key, lp)
		}
	}
}

func (pe *progend) deleteProgram(key programKey, lp *linkedProgram) {
	pe.ctx.drv.DeleteProgram(lp.handle)
	lp.builtins.Destroy()
	delete(pe.programs, key)
}

func (pe *progend) destroy() {
	for key, lp := range pe.programs {
		pe.deleteProgram(key, lp)
	}
}
