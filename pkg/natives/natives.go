// Package natives is a reference host-side implementation of the
// native-function contract the VM consumes by id: a small console I/O
// set plus a VFS-backed file table, wired through vm.NativeFunc/
// vm.Resolver so a program image can actually run end to end from the
// CLI.
package natives

import (
	"fmt"
	"io"
	"time"

	"mec/pkg/value"
	"mec/pkg/vfs"
	"mec/pkg/vm"
)

// Id mirrors NativeFuncId's ordering from the declaration these are
// grounded on, so a -n declaration file using the same names resolves
// to the same small integers a host built without one would hard-code.
type Id uint8

const (
	IDNull Id = iota
	IDPrint
	IDPrintLine
	IDPrintInt
	IDPrintFloat
	IDPrintFormat
	IDClock
	IDYieldFor
	IDYieldUntil
	IDReadFile
	IDWriteFile
	IDFileSize
	IDDeleteFile
	IDListFiles
)

// SysParam is the opaque sys-param every native receives, carrying the
// console writer and the VFS instance a script's file natives act on.
type SysParam struct {
	Out  io.Writer
	Disk *vfs.VirtualDisk
}

// Clock returns the elapsed time since epoch supplied by the host,
// overridable in tests; defaults to wall-clock seconds since the Unix epoch.
var Clock = func() float32 { return float32(time.Now().UnixNano()) / 1e9 }

func arg(m *vm.VM, argsAddr uint32, i int) value.Value {
	return m.Stack[argsAddr+uint32(i)]
}

func argString(m *vm.VM, argsAddr uint32, i int) string {
	off := arg(m, argsAddr, i).AsUint32()
	return readCString(m.Program.Strings, off)
}

func readCString(pool []byte, offset uint32) string {
	if offset >= uint32(len(pool)) {
		return ""
	}
	end := offset
	for end < uint32(len(pool)) && pool[end] != 0 {
		end++
	}
	return string(pool[offset:end])
}

func sysParamOf(p any) *SysParam {
	sp, ok := p.(*SysParam)
	if !ok || sp == nil {
		return &SysParam{}
	}
	return sp
}

func fnPrint(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	fmt.Fprint(sp.Out, argString(m, argsAddr, 0))
	return 0
}

func fnPrintLine(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	fmt.Fprintln(sp.Out, argString(m, argsAddr, 0))
	return 0
}

func fnPrintInt(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	fmt.Fprint(sp.Out, arg(m, argsAddr, 0).AsInt32())
	return 0
}

func fnPrintFloat(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	fmt.Fprintf(sp.Out, "%f", arg(m, argsAddr, 0).AsFloat())
	return 0
}

// fnPrintFormat expects arg 0 as a string-pool offset containing a
// printf-style template and treats every remaining argument as a raw
// Value formatted %v-style — the demo host doesn't attempt to parse
// the verb list and dispatch per-type, since the language has no
// variadic user functions to exercise that generality against.
func fnPrintFormat(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	template := argString(m, argsAddr, 0)
	rest := make([]any, 0, argc-1)
	for i := 1; i < argc; i++ {
		rest = append(rest, uint32(arg(m, argsAddr, i)))
	}
	fmt.Fprintf(sp.Out, template, rest...)
	return 0
}

func fnClock(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	return value.FloatVal(Clock())
}

// fnYieldFor/fnYieldUntil have no scheduler to cooperate with here — the
// VM has no concept of suspension, so these are no-ops that return the
// requested duration/deadline unchanged, giving a script something
// observable to assert on in tests without blocking the interpreter.
func fnYieldFor(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	return arg(m, argsAddr, 0)
}

func fnYieldUntil(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	return arg(m, argsAddr, 0)
}

func fnReadFile(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	name := argString(m, argsAddr, 0)
	data, err := sp.Disk.Read(name)
	if err != nil {
		return value.Int32Val(-1)
	}
	destAddr := arg(m, argsAddr, 1).AsPointer()
	resolved := m.ResolveAddress(destAddr)
	n := len(data)
	if n > 4*len(m.Stack) {
		n = 0
	}
	for i := 0; i < n; i++ {
		slot := resolved + uint32(i>>2)
		if int(slot) >= len(m.Stack) {
			break
		}
		sub := uint(i&3) * 8
		mask := value.Value(0xFF) << sub
		byteVal := value.Value(data[i]) << sub
		m.Stack[slot] = (m.Stack[slot] &^ mask) | byteVal
	}
	return value.Int32Val(int32(n))
}

func fnWriteFile(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	name := argString(m, argsAddr, 0)
	srcAddr := arg(m, argsAddr, 1).AsPointer()
	length := int(arg(m, argsAddr, 2).AsInt32())
	resolved := m.ResolveAddress(srcAddr)

	data := make([]byte, length)
	for i := 0; i < length; i++ {
		slot := resolved + uint32(i>>2)
		if int(slot) >= len(m.Stack) {
			break
		}
		sub := uint(i&3) * 8
		data[i] = byte(m.Stack[slot] >> sub)
	}
	if err := sp.Disk.Write(name, data); err != nil {
		return value.Int32Val(-1)
	}
	return value.Int32Val(int32(length))
}

func fnFileSize(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	name := argString(m, argsAddr, 0)
	n, err := sp.Disk.Size(name)
	if err != nil {
		return value.Int32Val(-1)
	}
	return value.Int32Val(int32(n))
}

func fnDeleteFile(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	name := argString(m, argsAddr, 0)
	if err := sp.Disk.Delete(name); err != nil {
		return value.BoolVal(false)
	}
	return value.BoolVal(true)
}

// fnListFiles returns the number of entries on the disk. It ignores its
// arguments and writes nothing into VM memory; entry names are not
// listed.
func fnListFiles(m *vm.VM, sysParam any, argc int, argsAddr uint32) value.Value {
	sp := sysParamOf(sysParam)
	return value.Int32Val(int32(len(sp.Disk.List())))
}

var table = map[Id]vm.NativeFunc{
	IDPrint:       fnPrint,
	IDPrintLine:   fnPrintLine,
	IDPrintInt:    fnPrintInt,
	IDPrintFloat:  fnPrintFloat,
	IDPrintFormat: fnPrintFormat,
	IDClock:       fnClock,
	IDYieldFor:    fnYieldFor,
	IDYieldUntil:  fnYieldUntil,
	IDReadFile:    fnReadFile,
	IDWriteFile:   fnWriteFile,
	IDFileSize:    fnFileSize,
	IDDeleteFile:  fnDeleteFile,
	IDListFiles:   fnListFiles,
}

// Resolver is the default resolver over this package's native table,
// ready to hand to vm.New. It ignores argc: neither it nor the VM's
// CALL_NATIVE checks the argument count against a declared arity.
func Resolver(funcId int, argc int) (vm.NativeFunc, bool) {
	fn, ok := table[Id(funcId)]
	return fn, ok
}
