//go:build !tinygo && cgo

package gldriver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/soypat/glgl/v4.1-core/glgl"
)

type glDriver struct {
	feat Features
}

// NewGL returns a [Driver] that issues calls through go-gl. A GL context must
// be current on the calling thread. The core profile has no fixed function
// alpha test so it is always emulated in generated shaders.
func NewGL(feat Features) (Driver, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initializing GL function pointers: %w", err)
	}
	feat.NativeAlphaTest = false
	feat.SamplerObjects = true
	return &glDriver{feat: feat}, nil
}

func (d *glDriver) Features() Features { return d.feat }

func (d *glDriver) CreateShader(typ ShaderType) (uint32, error) {
	var gltype uint32
	switch typ {
	case VertexShader:
		gltype = gl.VERTEX_SHADER
	case FragmentShader:
		gltype = gl.FRAGMENT_SHADER
	default:
		return 0, fmt.Errorf("unsupported shader type %s", typ)
	}
	shader := gl.CreateShader(gltype)
	if shader == 0 {
		return 0, glErrOrMessage("glCreateShader returned zero id")
	}
	return shader, nil
}

func (d *glDriver) CompileShader(shader uint32, sources []string) (bool, string) {
	if len(sources) == 0 {
		return false, "no shader sources"
	}
	lengths := make([]int32, len(sources))
	for i := range sources {
		lengths[i] = int32(len(sources[i]))
	}
	csources, free := gl.Strs(sources...)
	gl.ShaderSource(shader, int32(len(sources)), csources, &lengths[0])
	free()
	gl.CompileShader(shader)
	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status != gl.FALSE {
		return true, ""
	}
	var logLength int32
	gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
	return false, strings.TrimRight(log, "\x00")
}

func (d *glDriver) DeleteShader(shader uint32) { gl.DeleteShader(shader) }

func (d *glDriver) CreateProgram() (uint32, error) {
	program := gl.CreateProgram()
	if program == 0 {
		return 0, glErrOrMessage("glCreateProgram returned zero id")
	}
	return program, nil
}

func (d *glDriver) LinkProgram(program uint32, shaders []uint32) (bool, string) {
	for _, shader := range shaders {
		gl.AttachShader(program, shader)
	}
	gl.LinkProgram(program)
	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status != gl.FALSE {
		return true, ""
	}
	var logLength int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
	return false, strings.TrimRight(log, "\x00")
}

func (d *glDriver) DeleteProgram(program uint32) { gl.DeleteProgram(program) }
func (d *glDriver) UseProgram(program uint32)    { gl.UseProgram(program) }

func (d *glDriver) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (d *glDriver) UniformIntv(loc int32, size, count int, v []int32) {
	n := int32(count)
	switch size {
	case 1:
		gl.Uniform1iv(loc, n, &v[0])
	case 2:
		gl.Uniform2iv(loc, n, &v[0])
	case 3:
		gl.Uniform3iv(loc, n, &v[0])
	case 4:
		gl.Uniform4iv(loc, n, &v[0])
	}
}

func (d *glDriver) UniformFloatv(loc int32, size, count int, v []float32) {
	n := int32(count)
	switch size {
	case 1:
		gl.Uniform1fv(loc, n, &v[0])
	case 2:
		gl.Uniform2fv(loc, n, &v[0])
	case 3:
		gl.Uniform3fv(loc, n, &v[0])
	case 4:
		gl.Uniform4fv(loc, n, &v[0])
	}
}

func (d *glDriver) UniformMatrixv(loc int32, dim, count int, v []float32) {
	n := int32(count)
	// Data is always stored column-major, never ask the driver to transpose.
	switch dim {
	case 2:
		gl.UniformMatrix2fv(loc, n, false, &v[0])
	case 3:
		gl.UniformMatrix3fv(loc, n, false, &v[0])
	case 4:
		gl.UniformMatrix4fv(loc, n, false, &v[0])
	}
}

func (d *glDriver) GenSampler() uint32 {
	var sampler uint32
	gl.GenSamplers(1, &sampler)
	return sampler
}

func (d *glDriver) SamplerParameter(sampler uint32, param SamplerParam, value int32) {
	gl.SamplerParameteri(sampler, uint32(param), value)
}

func (d *glDriver) BindSampler(unit int, sampler uint32) {
	gl.BindSampler(uint32(unit), sampler)
}

func (d *glDriver) DeleteSampler(sampler uint32) {
	gl.DeleteSamplers(1, &sampler)
}

func glErrOrMessage(defaultMsg string) (err error) {
	code := gl.GetError()
	if code == gl.OUT_OF_MEMORY {
		return fmt.Errorf("%s: %w", defaultMsg, ErrOutOfMemory)
	}
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
