package ptyworker

import "github.com/hinshun/vt10x"

// emulator is the narrow slice of a headless terminal grid the worker
// needs: feed bytes, resize, and read back the currently visible text. A
// fake implementation backs the worker's unit tests so they don't depend
// on real VT100 state transitions.
type emulator interface {
	Write(p []byte) (int, error)
	Resize(cols, rows int)
	String() string
}

func newEmulator(cols, rows int) emulator {
	vt := vt10x.New(vt10x.WithSize(cols, rows))
	return vt
}
