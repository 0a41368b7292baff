// Package glbuild generates GLSL source text for rendering pipelines.
//
// Functions follow the append convention: they take a destination byte slice,
// append generated text to it and return the extended slice. No function in
// this package talks to a GPU driver.
package glbuild

import (
	"encoding/binary"
	"strconv"
)

// TextureType is the dimensionality of the texture sampled by a layer.
type TextureType uint8

const (
	Texture2D TextureType = iota
	Texture3D
	TextureRectangle
)

// TargetString returns the GLSL sampler/lookup suffix for the texture type and
// the swizzle selecting its coordinates from a vec4.
func (tt TextureType) TargetString() (target, coordSwizzle string) {
	switch tt {
	case Texture2D:
		return "2D", "st"
	case Texture3D:
		return "3D", "stp"
	case TextureRectangle:
		return "2DRect", "st"
	}
	panic("glbuild: invalid texture type " + strconv.Itoa(int(tt)))
}

func (tt TextureType) String() string {
	switch tt {
	case Texture2D:
		return "2D"
	case Texture3D:
		return "3D"
	case TextureRectangle:
		return "rectangle"
	}
	return "TextureType(" + strconv.Itoa(int(tt)) + ")"
}

// AppendIndexed appends name immediately followed by the decimal value of i,
// as in "cogl_layer3".
func AppendIndexed(b []byte, name string, i int) []byte {
	b = append(b, name...)
	return strconv.AppendInt(b, int64(i), 10)
}

// AppendIndexedSuffix appends name, the decimal value of i and suffix, as in "cogl_tex_coord3_in".
func AppendIndexedSuffix(b []byte, name string, i int, suffix string) []byte {
	b = AppendIndexed(b, name, i)
	return append(b, suffix...)
}

// AppendUniformDecl appends "uniform <typename> <name>;\n".
func AppendUniformDecl(b []byte, typename, name string) []byte {
	b = append(b, "uniform "...)
	b = append(b, typename...)
	b = append(b, ' ')
	b = append(b, name...)
	b = append(b, ";\n"...)
	return b
}

// AppendIndexedUniformDecl appends "uniform <typename> <name><i>;\n".
func AppendIndexedUniformDecl(b []byte, typename, name string, i int) []byte {
	b = append(b, "uniform "...)
	b = append(b, typename...)
	b = append(b, ' ')
	b = AppendIndexed(b, name, i)
	return append(b, ";\n"...)
}

// AppendArrayAlias appends "#define <name><index><suffix> <array>[<elem>]\n",
// aliasing a per-layer name to an element of a unit indexed array.
func AppendArrayAlias(b []byte, name string, index int, suffix, array string, elem int) []byte {
	b = append(b, "#define "...)
	b = AppendIndexedSuffix(b, name, index, suffix)
	b = append(b, ' ')
	b = append(b, array...)
	return AppendIndexedSuffix(b, "[", elem, "]\n")
}

// Hash mixes b into in and returns the result. It is not cryptographic:
// callers must confirm a hash match by comparing the hashed bytes.
func Hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}

// TopoOrder appends to dst every node reachable from root through deps in
// post order: each node is appended after all of its dependencies. deps[n]
// lists the nodes n depends on. Nodes are appended once even if several nodes
// depend on them. Dependency cycles are broken at the node revisited.
func TopoOrder(dst []int, root int, deps [][]int) []int {
	type frame struct {
		node, next int
	}
	visited := make([]bool, len(deps))
	stack := []frame{{node: root}}
	visited[root] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(deps[top.node]) {
			child := deps[top.node][top.next]
			top.next++
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{node: child})
			}
			continue
		}
		dst = append(dst, top.node)
		stack = stack[:len(stack)-1]
	}
	return dst
}
