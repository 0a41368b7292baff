package glpipe

import (
	"bytes"

	"github.com/soypat/glpipe/glbuild"
)

const templateSeed = 0x9e3779b97f4a7c15

// templateCache maps pipeline fingerprints to shader states so that
// unrelated pipelines with equal codegen state share compiled shaders.
type templateCache struct {
	buckets map[uint64][]templateEntry
	scratch []byte
	n       int
}

type templateEntry struct {
	key   []byte
	state stateID
}

func (tc *templateCache) lookup(key []byte) (stateID, bool) {
	for _, e := range tc.buckets[glbuild.Hash(key, templateSeed)] {
		if bytes.Equal(e.key, key) {
			return e.state, true
		}
	}
	return 0, false
}

func (tc *templateCache) insert(key []byte, id stateID) {
	if tc.buckets == nil {
		tc.buckets = make(map[uint64][]templateEntry)
	}
	h := glbuild.Hash(key, templateSeed)
	tc.buckets[h] = append(tc.buckets[h], templateEntry{key: bytes.Clone(key), state: id})
	tc.n++
}

// drain calls fn with every cached state and empties the cache.
func (tc *templateCache) drain(fn func(stateID)) {
	for h, bucket := range tc.buckets {
		for _, e := range bucket {
			fn(e.state)
		}
		delete(tc.buckets, h)
	}
	tc.n = 0
}
