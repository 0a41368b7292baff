package glbuild

import "strconv"

// Hook is a point in the generated source where user snippets are injected.
type Hook uint8

const (
	// HookVertexGlobals injects declarations at global scope of the vertex shader.
	HookVertexGlobals Hook = iota
	// HookFragmentGlobals injects declarations at global scope of the fragment shader.
	HookFragmentGlobals
	// HookVertex wraps the whole of vertex processing.
	HookVertex
	// HookVertexTransform wraps the position transform.
	HookVertexTransform
	// HookPointSize wraps the per-vertex point size calculation.
	HookPointSize
	// HookFragment wraps the whole of fragment processing.
	HookFragment
	// HookTextureCoordTransform wraps a layer's texture coordinate transform.
	HookTextureCoordTransform
	// HookLayerFragment wraps the combine code of a layer.
	HookLayerFragment
	// HookTextureLookup wraps a layer's texture lookup.
	HookTextureLookup
)

func (h Hook) String() string {
	switch h {
	case HookVertexGlobals:
		return "vertex-globals"
	case HookFragmentGlobals:
		return "fragment-globals"
	case HookVertex:
		return "vertex"
	case HookVertexTransform:
		return "vertex-transform"
	case HookPointSize:
		return "point-size"
	case HookFragment:
		return "fragment"
	case HookTextureCoordTransform:
		return "texture-coord-transform"
	case HookLayerFragment:
		return "layer-fragment"
	case HookTextureLookup:
		return "texture-lookup"
	}
	return "Hook(" + strconv.Itoa(int(h)) + ")"
}

// IsVertex reports whether the hook belongs to the vertex shader.
func (h Hook) IsVertex() bool {
	switch h {
	case HookVertexGlobals, HookVertex, HookVertexTransform, HookPointSize, HookTextureCoordTransform:
		return true
	}
	return false
}

// Snippet is user supplied source attached to a hook. A non empty Replace
// replaces the default code of the hook and every snippet before it.
type Snippet struct {
	Hook         Hook
	Declarations string
	Pre          string
	Replace      string
	Post         string
}

// IsReplace reports whether the snippet replaces the code it wraps.
func (s Snippet) IsReplace() bool { return s.Replace != "" }

// SnippetChain describes the function wrapped by the snippets of one hook.
type SnippetChain struct {
	Hook Hook
	// ChainFunction is the name of the function with the default code.
	ChainFunction string
	// FinalName is the name callers use. The last snippet function gets it.
	FinalName string
	// FunctionPrefix names intermediate functions as FunctionPrefix_N.
	FunctionPrefix string
	// ReturnType is empty for void functions.
	ReturnType     string
	ReturnVariable string
	// ReturnVariableIsArgument is set when ReturnVariable is one of the
	// declared arguments and must not be redeclared as a local.
	ReturnVariableIsArgument bool
	Arguments                string
	ArgumentDeclarations     string
}

// HasReplace reports whether any snippet for hook replaces the default code.
func HasReplace(snippets []Snippet, hook Hook) bool {
	for i := range snippets {
		if snippets[i].Hook == hook && snippets[i].IsReplace() {
			return true
		}
	}
	return false
}

// AppendSnippetDeclarations appends the declarations of every snippet for hook.
func AppendSnippetDeclarations(dst []byte, snippets []Snippet, hook Hook) []byte {
	for i := range snippets {
		if snippets[i].Hook == hook {
			dst = append(dst, snippets[i].Declarations...)
		}
	}
	return dst
}

// AppendSnippetChain appends one function per snippet hooked at c.Hook, each
// calling the previous one and the first calling c.ChainFunction. Snippets
// before the last replacing snippet are skipped. When no snippet matches a
// stub named c.FinalName forwarding to c.ChainFunction is appended instead.
func AppendSnippetChain(dst []byte, snippets []Snippet, c *SnippetChain) []byte {
	first, n := 0, 0
	for i := range snippets {
		if snippets[i].Hook != c.Hook {
			continue
		}
		if snippets[i].IsReplace() {
			first, n = i, 1
		} else {
			n++
		}
	}
	if n == 0 {
		dst = append(dst, '\n')
		dst = c.appendReturnType(dst)
		dst = append(dst, '\n')
		dst = append(dst, c.FinalName...)
		dst = c.appendDeclArgs(dst)
		dst = append(dst, "{\n  "...)
		if c.ReturnType != "" {
			dst = append(dst, "return "...)
		}
		dst = append(dst, c.ChainFunction...)
		dst = append(dst, " ("...)
		dst = append(dst, c.Arguments...)
		dst = append(dst, ");\n}\n"...)
		return dst
	}
	i := 0
	for _, s := range snippets[first:] {
		if s.Hook != c.Hook {
			continue
		}
		dst = append(dst, s.Declarations...)
		dst = append(dst, '\n')
		dst = c.appendReturnType(dst)
		dst = append(dst, '\n')
		if i+1 < n {
			dst = c.appendIntermediateName(dst, i)
		} else {
			dst = append(dst, c.FinalName...)
		}
		dst = c.appendDeclArgs(dst)
		dst = append(dst, "{\n"...)
		if c.ReturnType != "" && !c.ReturnVariableIsArgument {
			dst = append(dst, "  "...)
			dst = append(dst, c.ReturnType...)
			dst = append(dst, ' ')
			dst = append(dst, c.ReturnVariable...)
			dst = append(dst, ";\n\n"...)
		}
		dst = append(dst, s.Pre...)
		if s.IsReplace() {
			dst = append(dst, s.Replace...)
		} else {
			dst = append(dst, "  "...)
			if c.ReturnType != "" {
				dst = append(dst, c.ReturnVariable...)
				dst = append(dst, " = "...)
			}
			if i > 0 {
				dst = c.appendIntermediateName(dst, i-1)
			} else {
				dst = append(dst, c.ChainFunction...)
			}
			dst = append(dst, " ("...)
			dst = append(dst, c.Arguments...)
			dst = append(dst, ");\n"...)
		}
		dst = append(dst, s.Post...)
		if c.ReturnType != "" {
			dst = append(dst, "  return "...)
			dst = append(dst, c.ReturnVariable...)
			dst = append(dst, ";\n"...)
		}
		dst = append(dst, "}\n"...)
		i++
	}
	return dst
}

func (c *SnippetChain) appendReturnType(dst []byte) []byte {
	if c.ReturnType == "" {
		return append(dst, "void"...)
	}
	return append(dst, c.ReturnType...)
}

func (c *SnippetChain) appendDeclArgs(dst []byte) []byte {
	dst = append(dst, " ("...)
	dst = append(dst, c.ArgumentDeclarations...)
	return append(dst, ")\n"...)
}

func (c *SnippetChain) appendIntermediateName(dst []byte, i int) []byte {
	dst = append(dst, c.FunctionPrefix...)
	dst = append(dst, '_')
	return strconv.AppendInt(dst, int64(i), 10)
}
