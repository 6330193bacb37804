package handshake

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Default control port range scanned by ProcNet
const (
	DefaultFirstPort = 38920
	DefaultLastPort  = 38927
)

// tcpListen is the LISTEN state in /proc/net/tcp
const tcpListen = "0A"

// ProcNet finds the lowest TCP port in [First, Last] on which pid listens
type ProcNet struct {
	// Root is the procfs mount, /proc when empty
	Root        string
	First, Last uint16
}

// NewProcNet scans the default port range
func NewProcNet() *ProcNet {
	return &ProcNet{First: DefaultFirstPort, Last: DefaultLastPort}
}

func (p *ProcNet) root() string {
	if p.Root != "" {
		return p.Root
	}
	return "/proc"
}

// Discover implements Discoverer. The port is the ident.
func (p *ProcNet) Discover(pid int) (uint32, error) {
	dir := filepath.Join(p.root(), strconv.Itoa(pid))
	inodes, err := socketInodes(filepath.Join(dir, "fd"))
	if err != nil {
		return 0, err
	}
	if len(inodes) == 0 {
		return 0, nil
	}

	var best uint32
	for _, name := range []string{"tcp", "tcp6"} {
		port, err := p.scan(filepath.Join(dir, "net", name), inodes)
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}
			return 0, err
		}
		if port != 0 && (best == 0 || port < best) {
			best = port
		}
	}
	return best, nil
}

// socketInodes collects the inodes of all sockets open in an fd directory
func socketInodes(fdDir string) (map[string]bool, error) {
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return nil, errors.Wrap(err, "handshake: list fds")
	}
	inodes := make(map[string]bool)
	for _, e := range entries {
		// fds come and go while the agent starts up
		link, err := os.Readlink(filepath.Join(fdDir, e.Name()))
		if err != nil {
			continue
		}
		if inode, ok := socketInode(link); ok {
			inodes[inode] = true
		}
	}
	return inodes, nil
}

// socketInode parses "socket:[12345]"
func socketInode(link string) (string, bool) {
	const prefix, suffix = "socket:[", "]"
	if !strings.HasPrefix(link, prefix) || !strings.HasSuffix(link, suffix) {
		return "", false
	}
	return link[len(prefix) : len(link)-len(suffix)], true
}

// scan reads one /proc/<pid>/net/tcp{,6} table
func (p *ProcNet) scan(path string, inodes map[string]bool) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "handshake: open tcp table")
	}
	defer f.Close()

	var best uint32
	s := bufio.NewScanner(f)
	s.Scan() // header
	for s.Scan() {
		port, ok := p.parseLine(s.Text(), inodes)
		if ok && (best == 0 || port < best) {
			best = port
		}
	}
	return best, errors.Wrap(s.Err(), "handshake: read tcp table")
}

// parseLine matches a line like
//
//	0: 0100007F:9808 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000 0 123456 1 ...
func (p *ProcNet) parseLine(line string, inodes map[string]bool) (uint32, bool) {
	fields := strings.Fields(line)
	if len(fields) < 10 || fields[3] != tcpListen || !inodes[fields[9]] {
		return 0, false
	}
	i := strings.LastIndexByte(fields[1], ':')
	if i < 0 {
		return 0, false
	}
	port, err := strconv.ParseUint(fields[1][i+1:], 16, 16)
	if err != nil || uint16(port) < p.First || uint16(port) > p.Last {
		return 0, false
	}
	return uint32(port), true
}
