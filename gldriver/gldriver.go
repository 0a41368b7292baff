// Package gldriver abstracts the subset of OpenGL needed to compile generated
// shaders, link programs, upload uniform values and manage sampler objects.
//
// Two implementations are provided: [NewGL] which issues real calls through
// go-gl (requires cgo and a current GL context) and [Recorder] which records
// every call in memory and is used for tests and source dumps.
package gldriver

import (
	"errors"
	"strconv"
)

// ErrOutOfMemory is returned when the driver fails to allocate a GPU object.
// Callers may have a fallback path so it is surfaced instead of logged.
var ErrOutOfMemory = errors.New("gldriver: out of GPU memory")

// ErrNoCGO is returned by [NewGL] on builds without cgo.
var ErrNoCGO = errors.New("gldriver: GL driver requires cgo and is not supported on TinyGo")

// ShaderType is the pipeline stage a shader object belongs to.
type ShaderType uint8

const (
	VertexShader ShaderType = iota
	FragmentShader
)

func (st ShaderType) String() string {
	switch st {
	case VertexShader:
		return "vertex"
	case FragmentShader:
		return "fragment"
	}
	return "ShaderType(" + strconv.Itoa(int(st)) + ")"
}

// SamplerParam is a sampler object parameter name. Values match the GL enums.
type SamplerParam uint32

const (
	SamplerMagFilter SamplerParam = 0x2800
	SamplerMinFilter SamplerParam = 0x2801
	SamplerWrapS     SamplerParam = 0x2802
	SamplerWrapT     SamplerParam = 0x2803
	SamplerWrapR     SamplerParam = 0x8072
)

// Features describes driver capabilities that change the generated source or
// the set of state that affects code generation.
type Features struct {
	// GLSLVersion is the value of the #version directive. Zero selects
	// 110 for desktop GL and 100 for embedded profiles.
	GLSLVersion int
	// Embedded is set for GLES2-like profiles: no fixed function builtins.
	Embedded bool
	// SamplerObjects is set when the driver supports sampler objects. When
	// unset the sampler cache synthesizes unique ids instead.
	SamplerObjects bool
	// NativeAlphaTest is set when the fixed function alpha test is available.
	// Otherwise alpha testing is emulated in the fragment shader.
	NativeAlphaTest bool
	// BuiltinPointSizeUniform is set when the point size can be set with
	// glPointSize instead of a uniform copied in the vertex shader.
	BuiltinPointSizeUniform bool
	// Texture3D is set when 3D textures can be sampled.
	Texture3D bool
}

// Version returns the GLSL version directive value for these features.
func (f Features) Version() int {
	if f.GLSLVersion != 0 {
		return f.GLSLVersion
	} else if f.Embedded {
		return 100
	}
	return 110
}

// Driver is implemented by GL backends. All calls happen on the rendering
// thread and are blocking.
type Driver interface {
	Features() Features

	// CreateShader allocates a shader object. It returns [ErrOutOfMemory]
	// when the driver has no room for a new object.
	CreateShader(typ ShaderType) (uint32, error)
	// CompileShader sets the concatenation of sources as the shader source
	// and compiles it. On failure infoLog holds the driver diagnostic.
	CompileShader(shader uint32, sources []string) (ok bool, infoLog string)
	DeleteShader(shader uint32)

	CreateProgram() (uint32, error)
	// LinkProgram attaches shaders to the program and links it.
	LinkProgram(program uint32, shaders []uint32) (ok bool, infoLog string)
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	// UniformLocation returns -1 when the uniform is not active in program.
	UniformLocation(program uint32, name string) int32

	UniformIntv(location int32, size, count int, v []int32)
	UniformFloatv(location int32, size, count int, v []float32)
	// UniformMatrixv uploads count column-major dim×dim matrices.
	UniformMatrixv(location int32, dim, count int, v []float32)

	GenSampler() uint32
	SamplerParameter(sampler uint32, param SamplerParam, value int32)
	BindSampler(unit int, sampler uint32)
	DeleteSampler(sampler uint32)
}
