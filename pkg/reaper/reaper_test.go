package reaper

import (
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeChildren stands in for wait4 so list behaviour can be checked
// without real processes
type fakeChildren struct {
	mu     sync.Mutex
	exited map[int]bool
	waited []int
}

func newFakeChildren() *fakeChildren {
	return &fakeChildren{exited: make(map[int]bool)}
}

func (f *fakeChildren) exit(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited[pid] = true
}

func (f *fakeChildren) wait(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = append(f.waited, pid)
	if f.exited[pid] {
		delete(f.exited, pid)
		return true
	}
	return false
}

// checkInvariants verifies every record sits in exactly one list and that
// no pid is active twice
func checkInvariants(t *testing.T, r *Reaper) {
	t.Helper()
	r.lock.Lock()
	defer r.lock.Unlock()

	seen := make(map[int32]string)
	pids := make(map[int]bool)
	for _, i := range r.active.indices(r.records) {
		require.NotContains(t, seen, i)
		seen[i] = "active"
		rec := r.records[i]
		require.Equal(t, stateActive, rec.state)
		require.False(t, pids[rec.pid], "pid %d tracked twice", rec.pid)
		pids[rec.pid] = true
	}
	for _, i := range r.free.indices(r.records) {
		require.NotContains(t, seen, i)
		seen[i] = "free"
		require.Equal(t, stateFree, r.records[i].state)
	}
	require.Len(t, seen, len(r.records))
}

func TestTrackAndCollect(t *testing.T) {
	f := newFakeChildren()
	r := New(WithWaiter(f.wait))

	for _, p := range []int{10, 11, 12} {
		require.NoError(t, r.Track(p))
	}
	assert.Equal(t, []int{10, 11, 12}, r.Snapshot().Active)

	f.exit(11)
	r.Collect()
	s := r.Snapshot()
	assert.Equal(t, []int{10, 12}, s.Active)
	assert.Equal(t, 1, s.Free)
	assert.Equal(t, 3, s.Records)
	checkInvariants(t, r)

	// the freed record is reused instead of growing the slab
	require.NoError(t, r.Track(13))
	s = r.Snapshot()
	assert.Equal(t, []int{10, 12, 13}, s.Active)
	assert.Equal(t, 0, s.Free)
	assert.Equal(t, 3, s.Records)
	checkInvariants(t, r)
}

func TestTrackInvalid(t *testing.T) {
	r := New(WithWaiter(newFakeChildren().wait))
	assert.ErrorIs(t, r.Track(0), ErrInvalidPid)
	assert.ErrorIs(t, r.Track(-3), ErrInvalidPid)

	r.Shutdown()
	assert.ErrorIs(t, r.Track(5), ErrClosed)
	assert.ErrorIs(t, r.Install(nil), ErrClosed)
}

func TestRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		f := newFakeChildren()
		r := New(WithWaiter(f.wait))
		live := make(map[int]bool)
		next := 100
		records := 0

		for step := 0; step < 200; step++ {
			switch rng.Intn(3) {
			case 0:
				require.NoError(t, r.Track(next))
				live[next] = true
				next++
			case 1:
				for p := range live {
					if rng.Intn(2) == 0 {
						f.exit(p)
					}
				}
			case 2:
				f.mu.Lock()
				exited := make(map[int]bool, len(f.exited))
				for p := range f.exited {
					exited[p] = true
				}
				f.mu.Unlock()

				r.Collect()
				s := r.Snapshot()
				for _, p := range s.Active {
					assert.False(t, exited[p], "exited pid %d still active", p)
				}
				for p := range exited {
					delete(live, p)
				}
				assert.Len(t, s.Active, len(live))
			}
			checkInvariants(t, r)
			s := r.Snapshot()
			require.GreaterOrEqual(t, s.Records, records)
			records = s.Records
		}
	}
}

func TestShutdownReleasesFree(t *testing.T) {
	f := newFakeChildren()
	r := New(WithWaiter(f.wait))
	require.NoError(t, r.Track(1))
	require.NoError(t, r.Track(2))
	f.exit(1)
	r.Collect()

	r.Shutdown()
	r.Shutdown()

	r.lock.Lock()
	defer r.lock.Unlock()
	assert.True(t, r.free.empty())
	assert.Nil(t, r.records[0])
	assert.Equal(t, 2, r.records[1].pid)
}

func TestInstallChainsPrevious(t *testing.T) {
	calls := make(chan os.Signal, 4)
	r := New()
	require.NoError(t, r.Install(HandlerFunc(func(sig os.Signal) {
		select {
		case calls <- sig:
		default:
		}
	})))
	defer r.Shutdown()
	require.NoError(t, r.Install(nil))
	assert.True(t, r.Installed())

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGCHLD))
	select {
	case sig := <-calls:
		assert.Equal(t, syscall.SIGCHLD, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("previous handler was not called")
	}
}

func TestReapRealChildren(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(nil))
	defer r.Shutdown()

	var pids []int
	for i := 0; i < 3; i++ {
		cmd := exec.Command("/bin/true")
		require.NoError(t, cmd.Start())
		pids = append(pids, cmd.Process.Pid)
		require.NoError(t, r.Track(cmd.Process.Pid))
	}

	require.Eventually(t, func() bool {
		return len(r.Snapshot().Active) == 0
	}, 5*time.Second, 10*time.Millisecond)

	for _, p := range pids {
		// the zombie is gone once the reaper waited on it
		_, err := unix.Wait4(p, nil, unix.WNOHANG, nil)
		assert.ErrorIs(t, err, unix.ECHILD)
	}
	assert.Equal(t, 3, r.Snapshot().Free)
}

func TestLeavesForeignChildren(t *testing.T) {
	r := New()
	require.NoError(t, r.Install(nil))
	defer r.Shutdown()

	cmd := exec.Command("/bin/sh", "-c", "exit 3")
	require.NoError(t, cmd.Start())

	err := cmd.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}
