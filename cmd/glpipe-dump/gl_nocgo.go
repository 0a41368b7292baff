//go:build tinygo || !cgo

package main

import "github.com/soypat/glpipe/gldriver"

func startGL(feat gldriver.Features) (gldriver.Driver, func(), error) {
	return nil, nil, gldriver.ErrNoCGO
}
