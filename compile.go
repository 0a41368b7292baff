package glpipe

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/gldriver"
)

// compileShader prepends the boilerplate for typ to sources and compiles the
// result. A version of 0 selects the driver default. Compile failures are
// logged and the shader handle is still returned; only failing to create the
// shader object is an error.
func (ctx *Context) compileShader(typ gldriver.ShaderType, layerIndices []int, version int, sources ...[]byte) (uint32, error) {
	shader, err := ctx.drv.CreateShader(typ)
	if err != nil {
		return 0, fmt.Errorf("glpipe: creating %s shader: %w", typ, err)
	}
	if version == 0 {
		version = ctx.feat.Version()
	}
	ctx.boilerplate = glbuild.AppendBoilerplate(ctx.boilerplate[:0], glbuild.BoilerplateConfig{
		Type:         typ,
		Version:      version,
		Embedded:     ctx.feat.Embedded,
		Texture3D:    ctx.feat.Texture3D,
		LayerIndices: layerIndices,
	})
	strs := ctx.sourceScratch[:0]
	strs = append(strs, string(ctx.boilerplate))
	for _, src := range sources {
		strs = append(strs, string(src))
	}
	ctx.sourceScratch = strs[:0]

	log := ctx.logger()
	if ctx.cfg.Debug.Has(DebugShowSource) {
		log.Debug("compiling shader", slog.String("type", typ.String()), slog.String("source", strings.Join(strs, "")))
	}
	ok, infoLog := ctx.drv.CompileShader(shader, strs)
	if typ == gldriver.VertexShader {
		ctx.stats.VertexCompiles++
	} else {
		ctx.stats.FragmentCompiles++
	}
	if !ok {
		log.Warn("shader compilation failed",
			slog.String("type", typ.String()),
			slog.String("info", infoLog),
			slog.String("source", strings.Join(strs, "")),
		)
	}
	return shader, nil
}
