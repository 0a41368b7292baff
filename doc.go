// Package glpipe compiles declarative rendering pipelines into GLSL shader
// pairs and caches the result.
//
// A [Pipeline] describes ordered texture layers with their combine
// functions, user snippets, alpha test, point size and uniform values. When a
// pipeline is flushed with [Context.FlushPipeline] each [Stage] generates
// source for it, or reuses the shader of an ancestor or of any pipeline with
// the same codegen state. The shaders are then linked and the uniforms that
// changed since the last flush are uploaded.
//
// State changes that do not affect generated code, such as the pipeline
// color or a layer's constant, never cause a recompile.
package glpipe
