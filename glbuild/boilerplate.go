package glbuild

import (
	"strconv"

	"github.com/soypat/glpipe/gldriver"
)

// BoilerplateConfig controls the text prepended to every generated or user
// supplied shader so that the cogl_* names resolve on the target profile.
type BoilerplateConfig struct {
	Type gldriver.ShaderType
	// Version is the value of the #version directive.
	Version int
	// Embedded selects GLES2 style output.
	Embedded bool
	// Texture3D enables the OES 3D texture extension on embedded profiles.
	Texture3D bool
	// LayerIndices lists the index of each layer of the pipeline in texture
	// unit order. Its length is the number of texture coordinate varyings.
	LayerIndices []int
}

const commonBoilerplate = "uniform mat4 cogl_modelview_matrix;\n" +
	"uniform mat4 cogl_modelview_projection_matrix;\n" +
	"uniform mat4 cogl_projection_matrix;\n"

const vertexBoilerplate = commonBoilerplate +
	"#define cogl_color_out _cogl_color\n" +
	"varying vec4 _cogl_color;\n" +
	"#define cogl_tex_coord_out _cogl_tex_coord\n" +
	"#define cogl_position_out gl_Position\n" +
	"#define cogl_point_size_out gl_PointSize\n" +
	"\n" +
	"attribute vec4 cogl_color_in;\n" +
	"attribute vec4 cogl_position_in;\n" +
	"#define cogl_tex_coord_in cogl_tex_coord0_in\n" +
	"attribute vec3 cogl_normal_in;\n"

const fragmentBoilerplate = commonBoilerplate +
	"\n" +
	"varying vec4 _cogl_color;\n" +
	"\n" +
	"#define cogl_color_in _cogl_color\n" +
	"#define cogl_tex_coord_in _cogl_tex_coord\n" +
	"\n" +
	"#define cogl_color_out gl_FragColor\n" +
	"#define cogl_depth_out gl_FragDepth\n" +
	"\n" +
	"#define cogl_front_facing gl_FrontFacing\n" +
	"\n" +
	"#define cogl_point_coord gl_PointCoord\n"

// AppendBoilerplate appends the version directive, extensions, stage macros
// and per-layer texture coordinate declarations described by cfg.
func AppendBoilerplate(dst []byte, cfg BoilerplateConfig) []byte {
	dst = append(dst, "#version "...)
	dst = strconv.AppendInt(dst, int64(cfg.Version), 10)
	dst = append(dst, "\n\n"...)
	if cfg.Embedded && cfg.Texture3D {
		dst = append(dst, "#extension GL_OES_texture_3D : enable\n"...)
	}
	switch cfg.Type {
	case gldriver.VertexShader:
		dst = append(dst, vertexBoilerplate...)
	case gldriver.FragmentShader:
		if cfg.Embedded {
			dst = append(dst, "precision highp float;\n"...)
		}
		dst = append(dst, fragmentBoilerplate...)
	default:
		panic("glbuild: invalid shader type " + cfg.Type.String())
	}
	n := len(cfg.LayerIndices)
	if n == 0 {
		return dst
	}
	dst = append(dst, "varying vec4 _cogl_tex_coord["...)
	dst = strconv.AppendInt(dst, int64(n), 10)
	dst = append(dst, "];\n"...)
	if cfg.Type == gldriver.VertexShader {
		dst = append(dst, "uniform mat4 cogl_texture_matrix["...)
		dst = strconv.AppendInt(dst, int64(n), 10)
		dst = append(dst, "];\n"...)
	}
	for unit, index := range cfg.LayerIndices {
		if cfg.Type == gldriver.VertexShader {
			dst = AppendArrayAlias(dst, "cogl_texture_matrix", index, "", "cogl_texture_matrix", unit)
			dst = AppendIndexedSuffix(dst, "attribute vec4 cogl_tex_coord", index, "_in;\n")
			dst = AppendArrayAlias(dst, "cogl_tex_coord", index, "_out", "_cogl_tex_coord", unit)
		} else {
			dst = AppendArrayAlias(dst, "cogl_tex_coord", index, "_in", "_cogl_tex_coord", unit)
		}
	}
	return dst
}
