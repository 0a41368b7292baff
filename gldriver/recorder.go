package gldriver

import (
	"slices"
	"strings"
)

var _ Driver = (*Recorder)(nil) // Interface implementation compile-time check.

// Recorder is a [Driver] that keeps every object and call in memory. It never
// touches a GPU which makes it suitable for tests and for dumping generated
// source on machines without a GL context.
type Recorder struct {
	Feat Features
	// FailCompile, if not nil, is consulted on every compile. Returning true
	// makes the compile fail with a synthetic diagnostic.
	FailCompile func(typ ShaderType, source string) bool
	// OutOfMemory makes every object creation fail with [ErrOutOfMemory].
	OutOfMemory bool
	// ReuseProgramNames makes CreateProgram hand out the most recently
	// deleted program name first, as many drivers do.
	ReuseProgramNames bool

	Shaders  map[uint32]*RecordedShader
	Programs map[uint32]*RecordedProgram
	Samplers map[uint32]map[SamplerParam]int32
	// BoundSamplers maps texture units to the last bound sampler.
	BoundSamplers map[int]uint32
	Uploads       []Upload
	// Current is the program last passed to UseProgram.
	Current uint32

	Compiles int
	Links        int
	nextID       uint32
	freePrograms []uint32
}

// RecordedShader is a shader object created through a [Recorder].
type RecordedShader struct {
	Type     ShaderType
	Source   string
	Compiled bool
	Deleted  bool
}

// RecordedProgram is a program object created through a [Recorder].
type RecordedProgram struct {
	Shaders   []uint32
	Linked    bool
	Deleted   bool
	locations map[string]int32
}

// UploadKind tags the kind of uniform upload recorded.
type UploadKind uint8

const (
	UploadInt UploadKind = iota
	UploadFloat
	UploadMatrix
)

// Upload is one recorded uniform upload.
type Upload struct {
	Program  uint32
	Location int32
	Kind     UploadKind
	// Size is the component count for vectors and the dimension for matrices.
	Size   int
	Count  int
	Ints   []int32
	Floats []float32
}

// NewRecorder returns a ready to use Recorder with the given features.
func NewRecorder(feat Features) *Recorder {
	return &Recorder{
		Feat:          feat,
		Shaders:       make(map[uint32]*RecordedShader),
		Programs:      make(map[uint32]*RecordedProgram),
		Samplers:      make(map[uint32]map[SamplerParam]int32),
		BoundSamplers: make(map[int]uint32),
	}
}

func (r *Recorder) Features() Features { return r.Feat }

func (r *Recorder) newID() uint32 {
	r.nextID++
	return r.nextID
}

func (r *Recorder) CreateShader(typ ShaderType) (uint32, error) {
	if r.OutOfMemory {
		return 0, ErrOutOfMemory
	}
	id := r.newID()
	r.Shaders[id] = &RecordedShader{Type: typ}
	return id, nil
}

func (r *Recorder) CompileShader(shader uint32, sources []string) (bool, string) {
	sh := r.Shaders[shader]
	if sh == nil || sh.Deleted {
		return false, "invalid shader object"
	}
	r.Compiles++
	sh.Source = strings.Join(sources, "")
	if r.FailCompile != nil && r.FailCompile(sh.Type, sh.Source) {
		return false, "0:1(1): error: syntax error, rejected by recorder"
	}
	sh.Compiled = true
	return true, ""
}

func (r *Recorder) DeleteShader(shader uint32) {
	if sh := r.Shaders[shader]; sh != nil {
		sh.Deleted = true
	}
}

// LiveShaders returns the number of shader objects not yet deleted.
func (r *Recorder) LiveShaders() (n int) {
	for _, sh := range r.Shaders {
		if !sh.Deleted {
			n++
		}
	}
	return n
}

// ShaderSource returns the full source last compiled for shader.
func (r *Recorder) ShaderSource(shader uint32) string {
	if sh := r.Shaders[shader]; sh != nil {
		return sh.Source
	}
	return ""
}

func (r *Recorder) CreateProgram() (uint32, error) {
	if r.OutOfMemory {
		return 0, ErrOutOfMemory
	}
	var id uint32
	if n := len(r.freePrograms); r.ReuseProgramNames && n > 0 {
		id = r.freePrograms[n-1]
		r.freePrograms = r.freePrograms[:n-1]
	} else {
		id = r.newID()
	}
	r.Programs[id] = &RecordedProgram{locations: make(map[string]int32)}
	return id, nil
}

func (r *Recorder) LinkProgram(program uint32, shaders []uint32) (bool, string) {
	prog := r.Programs[program]
	if prog == nil || prog.Deleted {
		return false, "invalid program object"
	}
	r.Links++
	prog.Shaders = append(prog.Shaders[:0], shaders...)
	for _, s := range shaders {
		sh := r.Shaders[s]
		if sh == nil || !sh.Compiled {
			return false, "attached shader is not compiled"
		}
	}
	prog.Linked = true
	return true, ""
}

func (r *Recorder) DeleteProgram(program uint32) {
	if prog := r.Programs[program]; prog != nil && !prog.Deleted {
		prog.Deleted = true
		r.freePrograms = append(r.freePrograms, program)
	}
}

func (r *Recorder) UseProgram(program uint32) { r.Current = program }

// UniformLocation reports a uniform as active when its base name appears in
// the source of one of the program's shaders, mimicking the driver dropping
// uniforms that are not referenced.
func (r *Recorder) UniformLocation(program uint32, name string) int32 {
	prog := r.Programs[program]
	if prog == nil || !prog.Linked {
		return -1
	}
	if loc, ok := prog.locations[name]; ok {
		return loc
	}
	base := name
	if idx := strings.IndexByte(base, '['); idx >= 0 {
		base = base[:idx]
	}
	loc := int32(-1)
	for _, s := range prog.Shaders {
		if strings.Contains(r.Shaders[s].Source, base) {
			loc = int32(len(prog.locations))
			break
		}
	}
	prog.locations[name] = loc
	return loc
}

func (r *Recorder) UniformIntv(loc int32, size, count int, v []int32) {
	r.Uploads = append(r.Uploads, Upload{
		Program: r.Current, Location: loc, Kind: UploadInt,
		Size: size, Count: count, Ints: slices.Clone(v[:size*count]),
	})
}

func (r *Recorder) UniformFloatv(loc int32, size, count int, v []float32) {
	r.Uploads = append(r.Uploads, Upload{
		Program: r.Current, Location: loc, Kind: UploadFloat,
		Size: size, Count: count, Floats: slices.Clone(v[:size*count]),
	})
}

func (r *Recorder) UniformMatrixv(loc int32, dim, count int, v []float32) {
	r.Uploads = append(r.Uploads, Upload{
		Program: r.Current, Location: loc, Kind: UploadMatrix,
		Size: dim, Count: count, Floats: slices.Clone(v[:dim*dim*count]),
	})
}

func (r *Recorder) GenSampler() uint32 {
	id := r.newID()
	r.Samplers[id] = make(map[SamplerParam]int32)
	return id
}

func (r *Recorder) SamplerParameter(sampler uint32, param SamplerParam, value int32) {
	if params := r.Samplers[sampler]; params != nil {
		params[param] = value
	}
}

func (r *Recorder) BindSampler(unit int, sampler uint32) { r.BoundSamplers[unit] = sampler }

func (r *Recorder) DeleteSampler(sampler uint32) { delete(r.Samplers, sampler) }
