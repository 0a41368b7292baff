//go:build tinygo || !cgo

package gldriver

// NewGL returns [ErrNoCGO]: issuing GL calls requires cgo.
func NewGL(feat Features) (Driver, error) {
	return nil, ErrNoCGO
}
