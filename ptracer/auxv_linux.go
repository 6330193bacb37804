package ptracer

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"unsafe"

	"github.com/pkg/errors"
)

// auxv entry types
const (
	atNull  = 0
	atEntry = 9
)

// entryPoint reads AT_ENTRY of pid from procfs
func entryPoint(procRoot string, pid int) (uintptr, error) {
	path := filepath.Join(procRoot, strconv.Itoa(pid), "auxv")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "ptracer: read auxv")
	}
	return parseEntry(data)
}

// parseEntry walks native-endian (type, value) word pairs
func parseEntry(data []byte) (uintptr, error) {
	const word = int(unsafe.Sizeof(uintptr(0)))
	r := bytes.NewReader(data)
	for r.Len() >= 2*word {
		typ, err := readWord(r, word)
		if err != nil {
			return 0, err
		}
		val, err := readWord(r, word)
		if err != nil {
			return 0, err
		}
		switch typ {
		case atEntry:
			if val == 0 {
				return 0, errors.New("ptracer: AT_ENTRY is zero")
			}
			return uintptr(val), nil
		case atNull:
			return 0, errors.New("ptracer: AT_ENTRY not found")
		}
	}
	return 0, errors.New("ptracer: truncated auxv")
}

func readWord(r *bytes.Reader, size int) (uint64, error) {
	if size == 4 {
		var v uint32
		err := binary.Read(r, binary.NativeEndian, &v)
		return uint64(v), errors.WithStack(err)
	}
	var v uint64
	err := binary.Read(r, binary.NativeEndian, &v)
	return v, errors.WithStack(err)
}
