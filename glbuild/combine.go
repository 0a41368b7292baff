package glbuild

import "strconv"

// CombineFunc is a texture combine function in the style of GL_COMBINE.
type CombineFunc uint8

const (
	CombineReplace CombineFunc = iota
	CombineModulate
	CombineAdd
	CombineAddSigned
	CombineSubtract
	CombineInterpolate
	CombineDot3RGB
	// CombineDot3RGBA writes the dot product to all four channels, so when
	// used as the RGB function it overrides the alpha function.
	CombineDot3RGBA
)

func (f CombineFunc) String() string {
	switch f {
	case CombineReplace:
		return "REPLACE"
	case CombineModulate:
		return "MODULATE"
	case CombineAdd:
		return "ADD"
	case CombineAddSigned:
		return "ADD_SIGNED"
	case CombineSubtract:
		return "SUBTRACT"
	case CombineInterpolate:
		return "INTERPOLATE"
	case CombineDot3RGB:
		return "DOT3_RGB"
	case CombineDot3RGBA:
		return "DOT3_RGBA"
	}
	return "CombineFunc(" + strconv.Itoa(int(f)) + ")"
}

// NArgs returns the number of arguments read by the function.
func (f CombineFunc) NArgs() int {
	switch f {
	case CombineReplace:
		return 1
	case CombineInterpolate:
		return 3
	}
	return 2
}

// CombineSource is where a combine argument reads its value from.
type CombineSource int32

const (
	// SourceTexture is the texel sampled by the layer itself.
	SourceTexture CombineSource = iota
	// SourceConstant is the layer's constant color.
	SourceConstant
	// SourcePrimaryColor is the interpolated vertex color.
	SourcePrimaryColor
	// SourcePrevious is the result of the previous layer, or the primary
	// color for the first layer.
	SourcePrevious
	// SourceLayer0 is the texel of the layer with index 0. Use [SourceLayer]
	// for other indices.
	SourceLayer0 CombineSource = 16
)

// SourceLayer returns the source reading the texel of the layer with the given index.
func SourceLayer(index int) CombineSource {
	if index < 0 {
		panic("glbuild: negative layer index")
	}
	return SourceLayer0 + CombineSource(index)
}

// Layer returns the layer index read by a [SourceLayer] source.
func (s CombineSource) Layer() (index int, ok bool) {
	if s < SourceLayer0 {
		return 0, false
	}
	return int(s - SourceLayer0), true
}

func (s CombineSource) String() string {
	switch s {
	case SourceTexture:
		return "TEXTURE"
	case SourceConstant:
		return "CONSTANT"
	case SourcePrimaryColor:
		return "PRIMARY_COLOR"
	case SourcePrevious:
		return "PREVIOUS"
	}
	if idx, ok := s.Layer(); ok {
		return "TEXTURE" + strconv.Itoa(idx)
	}
	return "CombineSource(" + strconv.Itoa(int(s)) + ")"
}

// CombineOp selects which channels of a source are read.
type CombineOp uint8

const (
	OpSrcColor CombineOp = iota
	OpOneMinusSrcColor
	OpSrcAlpha
	OpOneMinusSrcAlpha
)

func (op CombineOp) inverted() bool {
	return op == OpOneMinusSrcColor || op == OpOneMinusSrcAlpha
}

func (op CombineOp) String() string {
	switch op {
	case OpSrcColor:
		return "SRC_COLOR"
	case OpOneMinusSrcColor:
		return "ONE_MINUS_SRC_COLOR"
	case OpSrcAlpha:
		return "SRC_ALPHA"
	case OpOneMinusSrcAlpha:
		return "ONE_MINUS_SRC_ALPHA"
	}
	return "CombineOp(" + strconv.Itoa(int(op)) + ")"
}

// Combine describes one combine function and its arguments. Only the first
// Func.NArgs() elements of Src and Op are meaningful.
type Combine struct {
	Func CombineFunc
	Src  [3]CombineSource
	Op   [3]CombineOp
}

// DefaultRGBCombine and DefaultAlphaCombine modulate the previous layer
// with the layer's texture, as fixed function GL does.
var (
	DefaultRGBCombine = Combine{
		Func: CombineModulate,
		Src:  [3]CombineSource{SourcePrevious, SourceTexture, SourceConstant},
		Op:   [3]CombineOp{OpSrcColor, OpSrcColor, OpSrcColor},
	}
	DefaultAlphaCombine = Combine{
		Func: CombineModulate,
		Src:  [3]CombineSource{SourcePrevious, SourceTexture, SourceConstant},
		Op:   [3]CombineOp{OpSrcAlpha, OpSrcAlpha, OpSrcAlpha},
	}
)

// Args returns the meaningful sources of c.
func (c *Combine) Args() []CombineSource {
	return c.Src[:c.Func.NArgs()]
}

// Equal reports whether a and b compute the same result, ignoring unused arguments.
func (c *Combine) Equal(b *Combine) bool {
	if c.Func != b.Func {
		return false
	}
	n := c.Func.NArgs()
	for i := 0; i < n; i++ {
		if c.Src[i] != b.Src[i] || c.Op[i] != b.Op[i] {
			return false
		}
	}
	return true
}

// NeedsSeparate reports whether the RGB and alpha combines can not be
// computed by a single rgba expression using the RGB combine.
func NeedsSeparate(rgb, alpha *Combine) bool {
	if rgb.Func != alpha.Func {
		return true
	}
	n := rgb.Func.NArgs()
	for i := 0; i < n; i++ {
		if rgb.Src[i] != alpha.Src[i] {
			return true
		}
		// On the alpha channel SRC_COLOR reads the same as SRC_ALPHA, so
		// the ops only need to agree on inversion.
		if rgb.Op[i].inverted() != alpha.Op[i].inverted() {
			return true
		}
	}
	return false
}

// SourceAppender appends the expression of a source swizzled by swizzle,
// for example "cogl_texel0.rgb".
type SourceAppender func(dst []byte, src CombineSource, swizzle string) []byte

// AppendMaskedCombine appends "  cogl_layer.<swizzle> = <expr>;\n" where expr
// evaluates c. Sources are expanded through appendSource.
func AppendMaskedCombine(dst []byte, swizzle string, c *Combine, appendSource SourceAppender) []byte {
	dst = append(dst, "  cogl_layer."...)
	dst = append(dst, swizzle...)
	dst = append(dst, " = "...)
	arg := func(dst []byte, i int, swizzle string) []byte {
		return appendArg(dst, c.Src[i], c.Op[i], swizzle, appendSource)
	}
	switch c.Func {
	case CombineReplace:
		dst = arg(dst, 0, swizzle)
	case CombineModulate:
		dst = arg(dst, 0, swizzle)
		dst = append(dst, " * "...)
		dst = arg(dst, 1, swizzle)
	case CombineAdd:
		dst = arg(dst, 0, swizzle)
		dst = append(dst, " + "...)
		dst = arg(dst, 1, swizzle)
	case CombineAddSigned:
		dst = arg(dst, 0, swizzle)
		dst = append(dst, " + "...)
		dst = arg(dst, 1, swizzle)
		dst = append(dst, " - vec4(0.5, 0.5, 0.5, 0.5)."...)
		dst = append(dst, swizzle...)
	case CombineSubtract:
		dst = arg(dst, 0, swizzle)
		dst = append(dst, " - "...)
		dst = arg(dst, 1, swizzle)
	case CombineInterpolate:
		dst = arg(dst, 0, swizzle)
		dst = append(dst, " * "...)
		dst = arg(dst, 2, swizzle)
		dst = append(dst, " + "...)
		dst = arg(dst, 1, swizzle)
		dst = append(dst, " * (vec4(1.0, 1.0, 1.0, 1.0)."...)
		dst = append(dst, swizzle...)
		dst = append(dst, " - "...)
		dst = arg(dst, 2, swizzle)
		dst = append(dst, ')')
	case CombineDot3RGB, CombineDot3RGBA:
		dst = append(dst, "vec4(4.0 * (("...)
		dst = arg(dst, 0, "r")
		dst = append(dst, " - 0.5) * ("...)
		dst = arg(dst, 1, "r")
		dst = append(dst, " - 0.5) + ("...)
		dst = arg(dst, 0, "g")
		dst = append(dst, " - 0.5) * ("...)
		dst = arg(dst, 1, "g")
		dst = append(dst, " - 0.5) + ("...)
		dst = arg(dst, 0, "b")
		dst = append(dst, " - 0.5) * ("...)
		dst = arg(dst, 1, "b")
		dst = append(dst, " - 0.5)))."...)
		dst = append(dst, swizzle...)
	default:
		panic("glbuild: invalid combine function " + c.Func.String())
	}
	return append(dst, ";\n"...)
}

const alphaSwizzle = "aaaa"

func appendArg(dst []byte, src CombineSource, op CombineOp, swizzle string, appendSource SourceAppender) []byte {
	dst = append(dst, '(')
	if op.inverted() {
		dst = append(dst, "vec4(1.0, 1.0, 1.0, 1.0)."...)
		dst = append(dst, swizzle...)
		dst = append(dst, " - "...)
	}
	if op == OpSrcAlpha || op == OpOneMinusSrcAlpha {
		// Read the alpha channel as many times as the swizzle has components.
		swizzle = alphaSwizzle[:len(swizzle)]
	}
	dst = appendSource(dst, src, swizzle)
	return append(dst, ')')
}
