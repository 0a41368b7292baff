package uniform

import (
	"errors"
	"fmt"
)

// Locator resolves uniform names to locations in a linked program and uploads values.
type Locator interface {
	Uploader
	UniformLocation(program uint32, name string) int32
}

// Slot is one named uniform in a [Table].
type Slot struct {
	Name  string
	Value BoxedValue
	// Dirty is set when Value has not been uploaded to the current program.
	Dirty bool
	// location is valid only when resolved is set.
	location int32
	resolved bool
}

// Table is a growable array of named uniform slots. Each slot tracks whether
// its value changed since it was last flushed and caches its location for the
// program it was last flushed to. The location cache is dropped whenever the
// table is flushed against a different program object, as told by the serial
// the caller assigns to each linked program. GL names are reused after a
// program is deleted so they can not tell programs apart.
type Table struct {
	slots   []Slot
	index   map[string]int
	serial  uint64
	scratch BoxedValue
}

// Index returns the slot index for name, creating an unset slot if needed.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	if t.index == nil {
		t.index = make(map[string]int)
	}
	t.slots = append(t.slots, Slot{Name: name, location: -1})
	i := len(t.slots) - 1
	t.index[name] = i
	return i
}

// Lookup returns the slot index for name without creating it.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Len returns the number of slots.
func (t *Table) Len() int { return len(t.slots) }

// Set copies v into slot i. The slot is marked dirty only if the value changed.
func (t *Table) Set(i int, v *BoxedValue) bool {
	s := &t.slots[i]
	if Equal(&s.Value, v) {
		return false
	}
	Copy(&s.Value, v)
	s.Dirty = true
	return true
}

// Update applies set to a scratch copy of slot i's value and stores it if it differs.
func (t *Table) Update(i int, set func(bv *BoxedValue)) bool {
	Copy(&t.scratch, &t.slots[i].Value)
	set(&t.scratch)
	return t.Set(i, &t.scratch)
}

// MarkDirty forces every set slot to be uploaded on the next flush.
func (t *Table) MarkDirty() {
	for i := range t.slots {
		t.slots[i].Dirty = t.slots[i].Value.kind != KindNone
	}
}

// Flush uploads every dirty slot to program. serial identifies the linked
// program and must never be reused for a different one; zero is reserved.
// Flushing with a serial other than the previous one drops cached locations
// and uploads every set slot. Slots not active in program are skipped silently.
func (t *Table) Flush(loc Locator, program uint32, serial uint64) (uploaded int, err error) {
	if serial == 0 {
		panic("uniform: zero program serial")
	}
	if serial != t.serial {
		t.serial = serial
		for i := range t.slots {
			t.slots[i].resolved = false
		}
		t.MarkDirty()
	}
	var errs []error
	for i := range t.slots {
		s := &t.slots[i]
		if !s.Dirty {
			continue
		}
		if !s.resolved {
			s.location = loc.UniformLocation(program, s.Name)
			s.resolved = true
		}
		s.Dirty = false
		if s.location < 0 {
			continue
		}
		if ferr := s.Value.Flush(loc, s.location); ferr != nil {
			errs = append(errs, fmt.Errorf("flushing uniform %q: %w", s.Name, ferr))
			continue
		}
		uploaded++
	}
	return uploaded, errors.Join(errs...)
}

// Destroy releases every slot value.
func (t *Table) Destroy() {
	for i := range t.slots {
		t.slots[i].Value.Destroy()
	}
	t.slots = t.slots[:0]
	clear(t.index)
	t.serial = 0
}
