//go:build !tinygo && cgo

package main

import (
	"log"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/glpipe/gldriver"
)

// startGL opens a 1x1 window and returns a driver for its 3.3 core context.
// Core profiles reject attribute, varying and gl_FragColor.
func startGL(feat gldriver.Features) (gldriver.Driver, func(), error) {
	_, terminate, err := glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "glpipe-dump",
		Version: [2]int{3, 3},
		Width:   1,
		Height:  1,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Println("GLFW", glfw.GetVersionString())
	drv, err := gldriver.NewGL(feat)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	return drv, terminate, nil
}
