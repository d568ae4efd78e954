package permission

import "errors"

// Name is a capability a member may exercise.
type Name string

const (
	Financial  Name = "financial"
	Values     Name = "values"
	Reports    Name = "reports"
	Monitoring Name = "monitoring"
	Records    Name = "records"
)

// ErrUnknown is returned when parsing a name that is not registered.
var ErrUnknown = errors.New("unknown permission")

// registered is the bit order. Append only.
var registered = []Name{Financial, Values, Reports, Monitoring, Records}

var nameToBit = func() map[Name]int {
	out := make(map[Name]int, len(registered))
	for i, n := range registered {
		out[n] = i
	}
	return out
}()

// All returns every registered capability in bit order.
func All() []Name {
	return append([]Name(nil), registered...)
}

// Bit returns the bit index for name.
func Bit(name Name) (int, bool) {
	bit, ok := nameToBit[name]
	return bit, ok
}

// Parse validates s as a registered capability.
func Parse(s string) (Name, error) {
	n := Name(s)
	if _, ok := nameToBit[n]; !ok {
		return "", ErrUnknown
	}
	return n, nil
}

// Set is a bitmask of capabilities.
type Set struct {
	mask Mask64
}

// SetOf builds a Set from names. Unknown names are ignored.
func SetOf(names ...Name) Set {
	var s Set
	for _, n := range names {
		if bit, ok := nameToBit[n]; ok {
			s.mask.Set(bit)
		}
	}
	return s
}

// Full is the set of every registered capability.
func Full() Set {
	return SetOf(registered...)
}

// Has reports whether name is in the set.
func (s Set) Has(name Name) bool {
	bit, ok := nameToBit[name]
	if !ok {
		return false
	}
	return s.mask.Has(bit)
}

// Intersect keeps only capabilities present in both sets.
func (s Set) Intersect(other Set) Set {
	return Set{mask: s.mask & other.mask}
}

// Without removes names from the set.
func (s Set) Without(names ...Name) Set {
	for _, n := range names {
		if bit, ok := nameToBit[n]; ok {
			s.mask.Clear(bit)
		}
	}
	return s
}

// Names lists the members in bit order.
func (s Set) Names() []Name {
	out := make([]Name, 0, len(registered))
	for _, n := range registered {
		if s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Flags renders the set as a name to bool map, the shape exposed to clients.
func (s Set) Flags() map[Name]bool {
	out := make(map[Name]bool, len(registered))
	for _, n := range registered {
		out[n] = s.Has(n)
	}
	return out
}

// Raw exposes the bitmask for persistence.
func (s Set) Raw() uint64 {
	return s.mask.Raw()
}

// FromRaw rebuilds a Set from a persisted bitmask, dropping unregistered bits.
func FromRaw(raw uint64) Set {
	return Set{mask: Mask64(raw)}.Intersect(Full())
}
