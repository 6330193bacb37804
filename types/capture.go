package types

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// CaptureOptions are handed to the agent in the target through the
// capture-options variable
type CaptureOptions struct {
	AllowVSync                   bool `yaml:"allowVSync"`
	AllowFullscreen              bool `yaml:"allowFullscreen"`
	APIValidation                bool `yaml:"apiValidation"`
	CaptureCallstacks            bool `yaml:"captureCallstacks"`
	CaptureCallstacksOnlyActions bool `yaml:"captureCallstacksOnlyActions"`

	// DelayForDebugger is the number of seconds the target stays paused
	// after the handshake so a debugger can attach
	DelayForDebugger uint32 `yaml:"delayForDebugger"`

	VerifyBufferAccess bool `yaml:"verifyBufferAccess"`
	HookIntoChildren   bool `yaml:"hookIntoChildren"`
	RefAllResources    bool `yaml:"refAllResources"`
	CaptureAllCmdLists bool `yaml:"captureAllCmdLists"`
	DebugOutputMute    bool `yaml:"debugOutputMute"`
}

// DefaultCaptureOptions returns the options used when none are given
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		AllowVSync:      true,
		AllowFullscreen: true,
		DebugOutputMute: true,
	}
}

// encoded layout: 5 flags, 3 pad, little endian delay, 5 flags, 3 pad
const captureOptionsSize = 20

func (o CaptureOptions) bytes() [captureOptionsSize]byte {
	var b [captureOptionsSize]byte
	for i, v := range []bool{o.AllowVSync, o.AllowFullscreen, o.APIValidation, o.CaptureCallstacks, o.CaptureCallstacksOnlyActions} {
		b[i] = boolByte(v)
	}
	binary.LittleEndian.PutUint32(b[8:12], o.DelayForDebugger)
	for i, v := range []bool{o.VerifyBufferAccess, o.HookIntoChildren, o.RefAllResources, o.CaptureAllCmdLists, o.DebugOutputMute} {
		b[12+i] = boolByte(v)
	}
	return b
}

// EncodeAsString writes every byte of the layout as two letters 'a'+nibble,
// high nibble first, so the value survives any environment
func (o CaptureOptions) EncodeAsString() string {
	b := o.bytes()
	out := make([]byte, 0, 2*len(b))
	for _, c := range b {
		out = append(out, 'a'+(c>>4), 'a'+(c&0xf))
	}
	return string(out)
}

// DecodeCaptureOptions reverses EncodeAsString
func DecodeCaptureOptions(s string) (CaptureOptions, error) {
	var o CaptureOptions
	if len(s) != 2*captureOptionsSize {
		return o, errors.Errorf("capture options: want %d letters, got %d", 2*captureOptionsSize, len(s))
	}
	var b [captureOptionsSize]byte
	for i := range b {
		hi, lo := s[2*i]-'a', s[2*i+1]-'a'
		if hi > 0xf || lo > 0xf {
			return o, errors.Errorf("capture options: invalid letter at %d", 2*i)
		}
		b[i] = hi<<4 | lo
	}

	o.AllowVSync = b[0] != 0
	o.AllowFullscreen = b[1] != 0
	o.APIValidation = b[2] != 0
	o.CaptureCallstacks = b[3] != 0
	o.CaptureCallstacksOnlyActions = b[4] != 0
	o.DelayForDebugger = binary.LittleEndian.Uint32(b[8:12])
	o.VerifyBufferAccess = b[12] != 0
	o.HookIntoChildren = b[13] != 0
	o.RefAllResources = b[14] != 0
	o.CaptureAllCmdLists = b[15] != 0
	o.DebugOutputMute = b[16] != 0
	return o, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
