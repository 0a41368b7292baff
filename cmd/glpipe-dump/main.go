// Command glpipe-dump builds a pipeline from flags, flushes it and prints the
// generated vertex and fragment shaders. By default the GL calls are recorded
// so no window or GPU is needed; pass -gl to compile against a real driver
// and see its diagnostics.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/soypat/glpipe"
	"github.com/soypat/glpipe/glbuild"
	"github.com/soypat/glpipe/gldriver"
)

var (
	layers      = 1
	embedded    = false
	alpha       = ""
	alphaRef    = 0.5
	pointSprite = false
	pointSize   = 0.0
	showSource  = false
	nocache     = false
	useGL       = false
	flipY       = false
)

var alphaFuncs = map[string]glpipe.AlphaFunc{
	"never":    glpipe.AlphaNever,
	"less":     glpipe.AlphaLess,
	"equal":    glpipe.AlphaEqual,
	"lequal":   glpipe.AlphaLEqual,
	"greater":  glpipe.AlphaGreater,
	"notequal": glpipe.AlphaNotEqual,
	"gequal":   glpipe.AlphaGEqual,
	"always":   glpipe.AlphaAlways,
}

func init() {
	flag.IntVar(&layers, "layers", layers, "Number of texture layers. Each layer after the first modulates the previous one")
	flag.BoolVar(&embedded, "embedded", embedded, "Generate code for an embedded (GLES2-like) profile")
	flag.StringVar(&alpha, "alpha", alpha, "Alpha test function: never, less, equal, lequal, greater, notequal, gequal or always")
	flag.Float64Var(&alphaRef, "alpharef", alphaRef, "Alpha test reference value")
	flag.BoolVar(&pointSprite, "pointsprite", pointSprite, "Replace the texture coordinates of the first layer with point sprite coordinates")
	flag.Float64Var(&pointSize, "pointsize", pointSize, "Point size")
	flag.BoolVar(&showSource, "show", showSource, "Log shader sources as they are compiled")
	flag.BoolVar(&nocache, "nocache", nocache, "Disable program caches")
	flag.BoolVar(&flipY, "flipy", flipY, "Flip the Y axis of snippet written positions")
	flag.BoolVar(&useGL, "gl", useGL, "Compile with a real GL driver instead of recording calls. The context is a 3.3 core profile, "+
		"which rejects the GLSL 1.10 generated code, so compile failures are expected and logged with the driver diagnostic")
}

func main() {
	flag.Parse()
	if useGL {
		runtime.LockOSThread() // GL calls must happen on the thread owning the context.
	}
	err := run()
	if err != nil {
		log.Fatal(err)
	}
}

func run() error {
	feat := gldriver.Features{Embedded: embedded}
	var drv gldriver.Driver
	if useGL {
		d, terminate, err := startGL(feat)
		if err != nil {
			return fmt.Errorf("starting GL: %w", err)
		}
		defer terminate()
		drv = d
	} else {
		drv = gldriver.NewRecorder(feat)
	}

	var debug glpipe.DebugFlags
	if showSource {
		debug |= glpipe.DebugShowSource
	}
	if nocache {
		debug |= glpipe.DebugDisableProgramCaches
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := glpipe.NewContext(drv, glpipe.Config{Logger: logger, Debug: debug})
	defer ctx.Destroy()
	ctx.SetFlipY(flipY)

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	err = ctx.FlushPipeline(p)
	if err != nil {
		return fmt.Errorf("flushing pipeline: %w", err)
	}
	stats := ctx.Stats()
	fmt.Printf("vertex compiles: %d, fragment compiles: %d, links: %d\n", stats.VertexCompiles, stats.FragmentCompiles, stats.Links)

	rec, ok := drv.(*gldriver.Recorder)
	if !ok {
		return nil // Sources are only retained when recording.
	}
	fmt.Println("// vertex shader")
	fmt.Println(rec.ShaderSource(ctx.Vertex().Shader(p)))
	fmt.Println("// fragment shader")
	fmt.Println(rec.ShaderSource(ctx.Fragment().Shader(p)))
	return nil
}

func buildPipeline(ctx *glpipe.Context) (*glpipe.Pipeline, error) {
	if layers < 0 {
		return nil, fmt.Errorf("negative layer count %d", layers)
	}
	p := ctx.NewPipeline()
	for i := 0; i < layers; i++ {
		p.AddLayer(i)
	}
	if layers > 0 && pointSprite {
		p.SetLayerPointSpriteCoords(0, true)
	}
	if layers > 0 {
		// First layer replaces, the rest modulate.
		p.SetLayerCombine(0, glbuild.Combine{
			Func: glbuild.CombineReplace,
			Src:  [3]glbuild.CombineSource{glbuild.SourceTexture},
		}, glbuild.DefaultAlphaCombine)
	}
	if alpha != "" {
		fn, ok := alphaFuncs[strings.ToLower(alpha)]
		if !ok {
			return nil, fmt.Errorf("unknown alpha function %q", alpha)
		}
		p.SetAlphaTest(fn, float32(alphaRef))
	}
	p.SetPointSize(float32(pointSize))
	return p, nil
}
