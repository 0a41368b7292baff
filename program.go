package glpipe

import (
	"slices"

	"github.com/soypat/glpipe/gldriver"
	"github.com/soypat/glpipe/uniform"
)

// Shader is user supplied GLSL for one stage. It is compiled with the same
// boilerplate as generated shaders so it may use the cogl_* names.
type Shader struct {
	typ    gldriver.ShaderType
	source string
	handle uint32
	// layers are the layer indices handle was compiled for.
	layers []int
}

// NewShader returns a shader of the given type. It is compiled the first time
// a pipeline using a program it is attached to is flushed.
func NewShader(typ gldriver.ShaderType, source string) *Shader {
	if typ > gldriver.FragmentShader {
		panic("glpipe: invalid shader type " + typ.String())
	}
	return &Shader{typ: typ, source: source}
}

func (s *Shader) Type() gldriver.ShaderType { return s.typ }
func (s *Shader) Source() string            { return s.source }

// Program is a user program that replaces generated code for the stages it
// has shaders for. Its uniforms are set by location and uploaded when they
// change.
type Program struct {
	ctx *Context
	id  uint64
	// age increases whenever the set of compiled shaders changes, forcing a relink.
	age      uint64
	shaders  []*Shader
	uniforms uniform.Table
}

// NewProgram returns an empty program.
func (ctx *Context) NewProgram() *Program {
	ctx.nextProgramID++
	return &Program{ctx: ctx, id: ctx.nextProgramID}
}

// AttachShader adds s to the program.
func (pr *Program) AttachShader(s *Shader) {
	if slices.Contains(pr.shaders, s) {
		return
	}
	pr.shaders = append(pr.shaders, s)
	pr.age++
}

// HasShader reports whether the program has a shader for the stage.
func (pr *Program) HasShader(typ gldriver.ShaderType) bool {
	return slices.ContainsFunc(pr.shaders, func(s *Shader) bool { return s.typ == typ })
}

// UniformLocation returns the location used to set the named uniform. The
// location is valid for the lifetime of the program regardless of linking.
func (pr *Program) UniformLocation(name string) int {
	return pr.uniforms.Index(name)
}

func (pr *Program) slot(loc int) bool {
	if loc == -1 {
		return false
	} else if loc < 0 || loc >= pr.uniforms.Len() {
		panic("glpipe: invalid program uniform location")
	}
	return true
}

// SetUniformFloat sets count vectors of size floats. A location of -1 is ignored.
func (pr *Program) SetUniformFloat(loc, size, count int, v []float32) {
	if pr.slot(loc) {
		pr.uniforms.Update(loc, func(bv *uniform.BoxedValue) { bv.SetFloatVector(size, count, v) })
	}
}

// SetUniformInt sets count vectors of size ints. A location of -1 is ignored.
func (pr *Program) SetUniformInt(loc, size, count int, v []int32) {
	if pr.slot(loc) {
		pr.uniforms.Update(loc, func(bv *uniform.BoxedValue) { bv.SetIntVector(size, count, v) })
	}
}

// SetUniformMatrix sets count dim×dim matrices, column-major unless transpose
// is set. A location of -1 is ignored.
func (pr *Program) SetUniformMatrix(loc, dim, count int, transpose bool, v []float32) {
	if pr.slot(loc) {
		pr.uniforms.Update(loc, func(bv *uniform.BoxedValue) { bv.SetMatrix(dim, count, transpose, v) })
	}
}

// compile compiles every shader not yet compiled for layerIndices.
func (pr *Program) compile(layerIndices []int) error {
	ctx := pr.ctx
	for _, s := range pr.shaders {
		if s.handle != 0 && slices.Equal(s.layers, layerIndices) {
			continue
		}
		if s.handle != 0 {
			ctx.progend.shaderDeleted(s.handle)
			ctx.drv.DeleteShader(s.handle)
			s.handle = 0
		}
		h, err := ctx.compileShader(s.typ, layerIndices, 0, []byte(s.source))
		if err != nil {
			return err
		}
		s.handle = h
		s.layers = append(s.layers[:0], layerIndices...)
		pr.age++
	}
	return nil
}

// Destroy deletes the compiled shaders of the program and any linked program using them.
func (pr *Program) Destroy() {
	ctx := pr.ctx
	ctx.progend.programDestroyed(pr)
	for _, s := range pr.shaders {
		if s.handle != 0 {
			ctx.progend.shaderDeleted(s.handle)
			ctx.drv.DeleteShader(s.handle)
			s.handle = 0
		}
	}
	pr.uniforms.Destroy()
	pr.age++
}
