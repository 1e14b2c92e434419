// Package memspace allocates named, sized symbols inside one AstroLog address
// space. Symbols with an explicit address are placed when declared; the rest
// are placed first-fit, in name order, by a single call to Allocate.
package memspace

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/errael/castro/pkg/diag"
)

type Kind int

const (
	Memory Kind = iota
	Macro
	Switch
)

func (k Kind) String() string {
	switch k {
	case Memory:
		return "memory"
	case Macro:
		return "macro"
	case Switch:
		return "switch"
	}
	return "space"
}

type Flags uint

const (
	Builtin Flags = 1 << iota
	Prealloc
	DupErr
	SizeErr
	OverlapErr
	Faux
	sentinel
)

const errFlags = DupErr | SizeErr | OverlapErr

// NoAddr marks a symbol that has not been placed yet.
const NoAddr = -1

type Symbol struct {
	Name  string
	Size  int
	Addr  int
	Flags Flags
	// Conflict is the symbol an explicit placement collided with.
	Conflict *Symbol
	// Decl is the declaring syntax node, if any.
	Decl interface{}
}

func (s *Symbol) Has(f Flags) bool { return s.Flags&f != 0 }
func (s *Symbol) HasError() bool   { return s.Flags&errFlags != 0 }
func (s *Symbol) Allocated() bool  { return s.Addr != NoAddr }

// End is the last address the symbol occupies.
func (s *Symbol) End() int { return s.Addr + s.Size - 1 }

// IsSentinel reports whether s is one of the out-of-range guards.
func (s *Symbol) IsSentinel() bool { return s.Has(sentinel) }

func (s *Symbol) String() string {
	if s.Addr == NoAddr {
		return fmt.Sprintf("%s[%d]@?", s.Name, s.Size)
	}
	return fmt.Sprintf("%s[%d]@%d", s.Name, s.Size, s.Addr)
}

// Range is an inclusive address interval.
type Range struct {
	Lo, Hi int
}

func (r Range) overlaps(lo, hi int) bool { return r.Lo <= hi && lo <= r.Hi }

type span struct {
	Range
	sym *Symbol
}

type Space struct {
	kind      Kind
	limit     int
	base      int
	spans     []span // sorted by Lo, non-overlapping
	active    []*Symbol
	errors    []*Symbol
	reserves  []Range
	declared  bool
	finalized bool
}

// New creates an empty space with addresses 1..limit.
func New(kind Kind, limit int) *Space {
	s := &Space{kind: kind, limit: limit, base: 1}
	low := &Symbol{Name: "<below range>", Flags: sentinel | Prealloc, Addr: math.MinInt32}
	low.Size = 1 - low.Addr
	high := &Symbol{Name: "<above range>", Flags: sentinel | Prealloc, Addr: limit + 1}
	high.Size = math.MaxInt32 - limit
	s.spans = []span{
		{Range{low.Addr, low.End()}, low},
		{Range{high.Addr, high.End()}, high},
	}
	return s
}

// NewMemory creates the general register space with the builtin registers
// a..z at addresses 1..26.
func NewMemory(limit int) *Space {
	s := New(Memory, limit)
	for i := 0; i < 26; i++ {
		sym := &Symbol{Name: string(rune('a' + i)), Size: 1, Addr: i + 1, Flags: Builtin | Prealloc}
		s.insertActive(sym)
		s.insertSpan(sym)
	}
	return s
}

func (s *Space) Kind() Kind      { return s.kind }
func (s *Space) Limit() int      { return s.limit }
func (s *Space) Base() int       { return s.base }
func (s *Space) Finalized() bool { return s.finalized }

// HasDeclarations reports whether any user declaration, good or bad, has
// been made. Layout constraints must come first.
func (s *Space) HasDeclarations() bool { return s.declared }

func (s *Space) SetBase(base int) error {
	if base < 1 || base > s.limit {
		return fmt.Errorf("base %d is outside 1..%d", base, s.limit)
	}
	s.base = base
	return nil
}

// SetLimit moves the upper bound. It fails if a placed symbol would end up
// beyond the new limit.
func (s *Space) SetLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("limit %d must be positive", limit)
	}
	for _, sp := range s.spans {
		if !sp.sym.IsSentinel() && sp.Hi > limit {
			return fmt.Errorf("limit %d is below %s at %d", limit, sp.sym.Name, sp.sym.Addr)
		}
	}
	if s.base > limit {
		return fmt.Errorf("limit %d is below base %d", limit, s.base)
	}
	high := s.spans[len(s.spans)-1].sym
	high.Addr = limit + 1
	high.Size = math.MaxInt32 - limit
	s.spans[len(s.spans)-1].Range = Range{high.Addr, high.End()}
	s.limit = limit
	return nil
}

func (s *Space) Reserve(lo, hi int) error {
	if lo > hi {
		return fmt.Errorf("reserve range %d:%d is empty", lo, hi)
	}
	if lo < 1 || hi > s.limit {
		return fmt.Errorf("reserve range %d:%d is outside 1..%d", lo, hi, s.limit)
	}
	s.reserves = append(s.reserves, Range{lo, hi})
	return nil
}

func (s *Space) Reserves() []Range { return s.reserves }

// Declare adds a symbol. addr is NoAddr for automatic placement. Problems are
// recorded in the returned symbol's flags and the symbol is set aside.
func (s *Space) Declare(name string, size, addr int, decl interface{}) *Symbol {
	if s.finalized {
		diag.Internal("declare %q in %s space after allocation", name, s.kind)
	}
	s.declared = true
	sym := &Symbol{Name: name, Size: size, Addr: NoAddr, Decl: decl}
	switch {
	case size < 1:
		sym.Flags |= SizeErr
	case s.Lookup(name) != nil:
		sym.Flags |= DupErr
		sym.Conflict = s.Lookup(name)
	case addr != NoAddr:
		if other := s.occupant(addr, addr+size-1); other != nil {
			sym.Flags |= OverlapErr
			sym.Conflict = other
		}
	}
	if sym.HasError() {
		sym.Addr = addr
		s.errors = append(s.errors, sym)
		return sym
	}
	s.insertActive(sym)
	if addr != NoAddr {
		sym.Addr = addr
		sym.Flags |= Prealloc
		s.insertSpan(sym)
	}
	return sym
}

// DeclareFaux stands in for a name that was referenced but never declared,
// so later references resolve quietly.
func (s *Space) DeclareFaux(name string) *Symbol {
	if sym := s.Lookup(name); sym != nil {
		return sym
	}
	sym := &Symbol{Name: name, Size: 1, Addr: NoAddr, Flags: Faux}
	s.insertActive(sym)
	return sym
}

func (s *Space) Lookup(name string) *Symbol {
	i := sort.Search(len(s.active), func(i int) bool { return s.active[i].Name >= name })
	if i < len(s.active) && s.active[i].Name == name {
		return s.active[i]
	}
	return nil
}

// Symbols returns the active symbols sorted by name.
func (s *Space) Symbols() []*Symbol { return s.active }

// Errors returns the rejected declarations in declaration order.
func (s *Space) Errors() []*Symbol { return s.errors }

// ReservedHits returns the explicitly placed user symbols that overlap a
// reserved range.
func (s *Space) ReservedHits() []*Symbol {
	var hits []*Symbol
	for _, sp := range s.spans {
		if sp.sym.Has(Builtin | sentinel) {
			continue
		}
		for _, r := range s.reserves {
			if r.overlaps(sp.Lo, sp.Hi) {
				hits = append(hits, sp.sym)
				break
			}
		}
	}
	return hits
}

// Allocate places every unplaced symbol. The area below base and the
// reserved ranges are avoided. Symbols that do not fit are returned and left
// unplaced. Allocate may be called only once.
func (s *Space) Allocate() []*Symbol {
	if s.finalized {
		diag.Internal("%s space allocated twice", s.kind)
	}
	s.finalized = true

	busy := make([]Range, 0, len(s.spans)+len(s.reserves)+1)
	for _, sp := range s.spans {
		busy = append(busy, sp.Range)
	}
	if s.base > 1 {
		busy = append(busy, Range{1, s.base - 1})
	}
	busy = append(busy, s.reserves...)

	var unplaced []*Symbol
	for _, sym := range s.active {
		if sym.HasError() {
			diag.Internal("error symbol %s is active in %s space", sym.Name, s.kind)
		}
		if sym.Allocated() || sym.Has(Faux) {
			continue
		}
		addr, ok := firstFit(busy, sym.Size)
		if !ok {
			unplaced = append(unplaced, sym)
			continue
		}
		sym.Addr = addr
		s.insertSpan(sym)
		busy = append(busy, Range{sym.Addr, sym.End()})
	}
	return unplaced
}

// firstFit returns the lowest address that starts a free block of size
// addresses. busy may overlap and is unsorted; it is sorted in place.
func firstFit(busy []Range, size int) (int, bool) {
	sort.Slice(busy, func(i, j int) bool { return busy[i].Lo < busy[j].Lo })
	reach := busy[0].Hi
	for _, r := range busy[1:] {
		if r.Lo-reach-1 >= size {
			return reach + 1, true
		}
		reach = max(reach, r.Hi)
	}
	return 0, false
}

func (s *Space) occupant(lo, hi int) *Symbol {
	for _, sp := range s.spans {
		if sp.overlaps(lo, hi) {
			return sp.sym
		}
	}
	return nil
}

func (s *Space) insertActive(sym *Symbol) {
	i := sort.Search(len(s.active), func(i int) bool { return s.active[i].Name >= sym.Name })
	s.active = append(s.active, nil)
	copy(s.active[i+1:], s.active[i:])
	s.active[i] = sym
}

func (s *Space) insertSpan(sym *Symbol) {
	sp := span{Range{sym.Addr, sym.End()}, sym}
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].Lo > sp.Lo })
	s.spans = append(s.spans, span{})
	copy(s.spans[i+1:], s.spans[i:])
	s.spans[i] = sp
}

// WriteMap writes one "addr size name" line per placed user symbol, in
// address order.
func (s *Space) WriteMap(w io.Writer) error {
	for _, sp := range s.spans {
		if sp.sym.Has(Builtin | sentinel) {
			continue
		}
		if _, err := fmt.Fprintf(w, "%6d %4d %s\n", sp.sym.Addr, sp.sym.Size, sp.sym.Name); err != nil {
			return err
		}
	}
	return nil
}
