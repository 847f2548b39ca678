package compiler

import (
	"fmt"
	"sort"
	"strings"

	"mec/pkg/value"
)

// Variable is a declared name resolved to a VmPointer plus its declared
// element type and scope-depth: a name -> address resolution targeting
// a scope/pointer model of globals/locals/fields instead of
// frame-pointer byte offsets.
type Variable struct {
	Name       string
	Pointer    value.VmPointer
	Type       value.DataType
	IsArray    bool
	ArraySize  int
	ClassName  string // set when Type == DtClass
	Depth      int    // scope depth at declaration; -1 for globals
	Reads      int
	Written    bool   // set once a store targets this variable; drives the unassigned-global warning
	SlotSize   uint16 // width in Value-words; set for locals and global scalars/arrays, 0 for global class instances
	Line, Col  int
}

// SymbolTable owns the globals list, the active stack of local scopes
// inside the function currently being compiled, and the class/field
// tables. Locals are addressed by slot index from the frame base (scope
// local); globals are addressed by slot index from the buffer base
// (scope global).
type SymbolTable struct {
	globals     []*Variable
	globalIndex map[string]*Variable
	globalSlots uint16

	locals    []*Variable // flat, in declaration order, current function only
	scopeDepth int

	classes map[string]*ClassInfo
}

// ClassInfo mirrors original_source's ClassInfo: a field list with
// Value-word slot offsets from the instance base, an init-function id, and an optional
// constructor/destructor.
type ClassInfo struct {
	Name         string
	Id           int
	Fields       []FieldInfo
	FieldIndex   map[string]int
	InitFuncId   int
	CtorFuncId   int // -1 if none
	DtorFuncId   int // -1 if none
	sizeSlots    uint16
}

type FieldInfo struct {
	Name    string
	Type    value.DataType
	IsArray bool
	ArraySize int
	Offset  uint16 // in Value-word slots from the instance base
}

func (c *ClassInfo) Size() uint16        { return c.sizeSlots }
func (c *ClassInfo) HasConstructor() bool { return c.CtorFuncId >= 0 }

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		globalIndex: make(map[string]*Variable),
		classes:     make(map[string]*ClassInfo),
	}
}

// EnterFunction resets the local-scope stack for a new function body.
func (s *SymbolTable) EnterFunction() {
	s.locals = nil
	s.scopeDepth = 0
}

func (s *SymbolTable) ExitFunction() {
	s.locals = nil
	s.scopeDepth = 0
}

func (s *SymbolTable) ScopeBegin() { s.scopeDepth++ }

// ScopeEnd pops every local declared at a depth greater than the new
// depth and returns them in declaration order (innermost/most-recently
// declared last) so the caller can emit destructor calls before the
// coalesced OP_POP_N, mirroring original_source's ScopeEnd/Destroy.
func (s *SymbolTable) ScopeEnd() []*Variable {
	s.scopeDepth--
	i := len(s.locals)
	for i > 0 && s.locals[i-1].Depth > s.scopeDepth {
		i--
	}
	popped := append([]*Variable(nil), s.locals[i:]...)
	s.locals = s.locals[:i]
	return popped
}

func (s *SymbolTable) CurrentDepth() int { return s.scopeDepth }

// nextLocalSlot returns the slot index for a new local, i.e. the current
// frame-relative stack height.
func (s *SymbolTable) nextLocalSlot() uint16 {
	var n uint16
	for _, v := range s.locals {
		n += v.SlotSize
	}
	return n
}

// DeclareLocal allocates a new local variable at the current scope depth
// and returns it. No redeclaration or shadowing check is made here or in
// the parser: a repeated name gets a new slot, and Lookup finds the most
// recent declaration first.
func (s *SymbolTable) DeclareLocal(name string, t value.DataType, isArray bool, arraySize int, line, col int) *Variable {
	slot := s.nextLocalSlot()
	var size uint16 = 1
	if isArray {
		elemsPerSlot := value.PackedCount(t)
		size = uint16((arraySize + elemsPerSlot - 1) / elemsPerSlot)
	}
	v := &Variable{
		Name: name, Type: t, IsArray: isArray, ArraySize: arraySize,
		Depth: s.scopeDepth, Line: line, Col: col, SlotSize: size,
		Pointer: value.VmPointer{Address: slot, PointeeType: t, Scope: value.ScopeLocal},
	}
	s.locals = append(s.locals, v)
	return v
}

// DeclareGlobal allocates a new global variable, or returns the existing
// one if name was already declared.
func (s *SymbolTable) DeclareGlobal(name string, t value.DataType, isArray bool, arraySize int, line, col int) (*Variable, bool) {
	if v, ok := s.globalIndex[name]; ok {
		return v, true
	}
	slot := s.globalSlots
	var size uint16 = 1
	if isArray {
		elemsPerSlot := value.PackedCount(t)
		size = uint16((arraySize + elemsPerSlot - 1) / elemsPerSlot)
	}
	v := &Variable{
		Name: name, Type: t, IsArray: isArray, ArraySize: arraySize,
		Depth: -1, Line: line, Col: col, SlotSize: size,
		Pointer: value.VmPointer{Address: slot, PointeeType: t, Scope: value.ScopeGlobal},
	}
	s.globalSlots += size
	s.globalIndex[name] = v
	s.globals = append(s.globals, v)
	return v, false
}

// GlobalsSizeSlots is the total globals-region size in Value-words.
func (s *SymbolTable) GlobalsSizeSlots() uint16 { return s.globalSlots }

// DeclareGlobalClassInstance reserves a class-sized run of global slots.
func (s *SymbolTable) DeclareGlobalClassInstance(name, className string, sizeSlots uint16, line, col int) (*Variable, bool) {
	if v, ok := s.globalIndex[name]; ok {
		return v, true
	}
	slot := s.globalSlots
	v := &Variable{
		Name: name, Type: value.DtClass, ClassName: className, Depth: -1, Line: line, Col: col,
		Pointer: value.VmPointer{Address: slot, PointeeType: value.DtClass, Scope: value.ScopeGlobal},
	}
	s.globalSlots += sizeSlots
	s.globalIndex[name] = v
	s.globals = append(s.globals, v)
	return v, false
}

// DeclareLocalClassInstance reserves a class-sized run of local slots.
func (s *SymbolTable) DeclareLocalClassInstance(name, className string, sizeSlots uint16, line, col int) *Variable {
	slot := s.nextLocalSlot()
	v := &Variable{
		Name: name, Type: value.DtClass, ClassName: className, Depth: s.scopeDepth, Line: line, Col: col, SlotSize: sizeSlots,
		Pointer: value.VmPointer{Address: slot, PointeeType: value.DtClass, Scope: value.ScopeLocal},
	}
	s.locals = append(s.locals, v)
	return v
}

// LocalsSlotCountAboveDepth sums the slot width of every local declared
// deeper than depth, without popping them — used by break/continue to
// discard locals mid-block before jumping past their natural scope-end.
func (s *SymbolTable) LocalsSlotCountAboveDepth(depth int) uint16 {
	var n uint16
	for _, v := range s.locals {
		if v.Depth > depth {
			n += v.SlotSize
		}
	}
	return n
}

// Lookup resolves name against: locals (innermost first), then globals.
// Class-field resolution happens one level up, in the codegen, since it
// needs the currently-compiling class's field table, not this struct.
func (s *SymbolTable) Lookup(name string) (*Variable, bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].Name == name {
			return s.locals[i], true
		}
	}
	if v, ok := s.globalIndex[name]; ok {
		return v, true
	}
	return nil, false
}

func (s *SymbolTable) InFunction() bool { return s.locals != nil || s.scopeDepth > 0 }

// DeclareClass registers a new class and returns its ClassInfo, or nil if
// the name is already taken.
func (s *SymbolTable) DeclareClass(name string) *ClassInfo {
	if _, ok := s.classes[name]; ok {
		return nil
	}
	c := &ClassInfo{Name: name, Id: len(s.classes), FieldIndex: make(map[string]int), CtorFuncId: -1, DtorFuncId: -1}
	s.classes[name] = c
	return c
}

func (s *SymbolTable) ResolveClass(name string) (*ClassInfo, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// AddField appends a field to a class body and returns it; its Offset is
// in Value-word slots from the instance base.
func (c *ClassInfo) AddField(name string, t value.DataType, isArray bool, arraySize int) FieldInfo {
	var size uint16 = 1
	if isArray {
		elemsPerSlot := value.PackedCount(t)
		size = uint16((arraySize + elemsPerSlot - 1) / elemsPerSlot)
	}
	f := FieldInfo{Name: name, Type: t, IsArray: isArray, ArraySize: arraySize, Offset: c.sizeSlots}
	c.FieldIndex[name] = len(c.Fields)
	c.Fields = append(c.Fields, f)
	c.sizeSlots += size
	return f
}

func (c *ClassInfo) LookupField(name string) (FieldInfo, bool) {
	i, ok := c.FieldIndex[name]
	if !ok {
		return FieldInfo{}, false
	}
	return c.Fields[i], true
}

// String returns a deterministically ordered dump, in the spirit of the
// teacher's SymbolTable.String() debug helper.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	sb.WriteString("Globals:\n")
	names := make([]string, 0, len(s.globalIndex))
	for n := range s.globalIndex {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		v := s.globalIndex[n]
		fmt.Fprintf(&sb, "  %-20s slot=%d type=%s\n", n, v.Pointer.Address, v.Type)
	}
	if len(s.classes) > 0 {
		sb.WriteString("Classes:\n")
		cnames := make([]string, 0, len(s.classes))
		for n := range s.classes {
			cnames = append(cnames, n)
		}
		sort.Strings(cnames)
		for _, n := range cnames {
			c := s.classes[n]
			fmt.Fprintf(&sb, "  class %s (size=%d slots): %d fields\n", n, c.sizeSlots, len(c.Fields))
		}
	}
	return sb.String()
}
