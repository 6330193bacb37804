package ptracer

import "golang.org/x/sys/unix"

const breakpointSupported = true

// int3
var breakpointInsn = []byte{0xcc}

// the trap leaves rip one past the int3
func resetPC(pid int, entry uintptr) error {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return err
	}
	regs.Rip = uint64(entry)
	return unix.PtraceSetRegs(pid, &regs)
}
