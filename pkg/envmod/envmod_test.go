package envmod

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_AppendThenPrepend(t *testing.T) {
	tb := Table{}
	Apply(tb, AppendVar("X", "v", SepColon))
	Apply(tb, AppendVar("X", "w", SepColon))
	assert.Equal(t, "v:w", tb["X"])

	Apply(tb, PrependVar("X", "a", SepColon))
	assert.Equal(t, "a:v:w", tb["X"])
}

func TestApply_Separators(t *testing.T) {
	tests := []struct {
		name string
		init string
		mod  Modification
		want string
	}{
		{"set replaces", "old", SetVar("X", "new"), "new"},
		{"set empty", "old", SetVar("X", ""), ""},
		{"append platform", "a", AppendVar("X", "b", SepPlatform), "a:b"},
		{"append semicolon", "a", AppendVar("X", "b", SepSemicolon), "a;b"},
		{"append none", "a", AppendVar("X", "b", SepNone), "ab"},
		{"append to empty", "", AppendVar("X", "b", SepSemicolon), "b"},
		{"prepend semicolon", "a", PrependVar("X", "b", SepSemicolon), "b;a"},
		{"prepend none", "a", PrependVar("X", "b", SepNone), "ba"},
		{"prepend to empty", "", PrependVar("X", "b", SepColon), "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := Table{"X": tt.init}
			Apply(tb, tt.mod)
			assert.Equal(t, tt.want, tb["X"])
		})
	}
}

func TestApplyAll_Ordered(t *testing.T) {
	tb := Table{"LD_LIBRARY_PATH": "/usr/lib"}
	ApplyAll(tb, []Modification{
		SetVar("ORIG", tb["LD_LIBRARY_PATH"]),
		AppendVar("LD_LIBRARY_PATH", "/opt/a", SepPlatform),
		SetVar("LD_LIBRARY_PATH", "/reset"),
		AppendVar("LD_LIBRARY_PATH", "/opt/b", SepPlatform),
	})
	assert.Equal(t, "/usr/lib", tb["ORIG"])
	assert.Equal(t, "/reset:/opt/b", tb["LD_LIBRARY_PATH"])
}

func TestApplyAll_EmptyIsIdentity(t *testing.T) {
	tb := FromEnviron([]string{"A=1", "B=", "C=x=y"})
	before := tb.Clone()
	blockBefore := tb.Block()

	ApplyAll(tb, nil)
	ApplyAll(tb, []Modification{})

	assert.True(t, before.Equal(tb))
	assert.Equal(t, blockBefore, tb.Block())
}

func TestTable_FromEnviron(t *testing.T) {
	tb := FromEnviron([]string{"A=1", "broken", "B=x=y", "A=2", "EMPTY="})
	assert.Equal(t, Table{"A": "2", "B": "x=y", "EMPTY": ""}, tb)
}

func TestTable_BlockRoundTrip(t *testing.T) {
	tb := Table{"Z": "last", "A": "first", "M": "a:b"}
	block := tb.Block()
	assert.Equal(t, "A=first\x00M=a:b\x00Z=last\x00\x00", string(block))
	assert.Equal(t, []string{"A=first", "M=a:b", "Z=last"}, tb.Environ())
	assert.True(t, tb.Equal(FromBlock(block)))
}

func TestTable_Equal(t *testing.T) {
	assert.True(t, Table{}.Equal(Table{}))
	assert.False(t, Table{"A": ""}.Equal(Table{"B": ""}))
	assert.False(t, Table{"A": "1"}.Equal(Table{"A": "2"}))
	assert.False(t, Table{"A": "1"}.Equal(Table{}))
}

func TestRegistry_TakeClears(t *testing.T) {
	var r Registry
	r.Register(AppendVar("X", "v", SepColon))
	r.Register(AppendVar("X", "w", SepColon))
	require.Len(t, r.Pending(), 2)
	require.Len(t, r.Pending(), 2)

	tb := Table{}
	r.ApplyTo(tb)
	assert.Equal(t, "v:w", tb["X"])
	assert.Empty(t, r.Pending())
	assert.Empty(t, r.Take())
}

func TestRegistry_ConcurrentBatchesDisjoint(t *testing.T) {
	var r Registry
	const n = 200
	for i := 0; i < n; i++ {
		r.Register(AppendVar("X", "v", SepNone))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := len(r.Take())
			mu.Lock()
			total += got
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, total)
}

func TestRegistry_ApplyToProcess(t *testing.T) {
	t.Setenv("ENVMOD_TEST_PATH", "/base")

	var r Registry
	r.Register(AppendVar("ENVMOD_TEST_PATH", "/extra", SepPlatform))
	r.Register(SetVar("ENVMOD_TEST_FLAG", "1"))
	t.Cleanup(func() { os.Unsetenv("ENVMOD_TEST_FLAG") })

	require.NoError(t, r.ApplyToProcess())
	assert.Equal(t, "/base:/extra", os.Getenv("ENVMOD_TEST_PATH"))
	assert.Equal(t, "1", os.Getenv("ENVMOD_TEST_FLAG"))
	assert.Empty(t, r.Pending())
}

func TestRegistry_ApplyToProcessKeepsGoing(t *testing.T) {
	t.Setenv("ENVMOD_TEST_AFTER", "")

	var r Registry
	r.Register(SetVar("ENVMOD=BAD", "x"))
	r.Register(SetVar("ENVMOD_TEST_AFTER", "applied"))

	err := r.ApplyToProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENVMOD=BAD")
	assert.Equal(t, "applied", os.Getenv("ENVMOD_TEST_AFTER"))
	assert.Empty(t, r.Pending())
}

func TestModification_String(t *testing.T) {
	assert.Equal(t, `Append(PATH="/bin", sep=":")`, AppendVar("PATH", "/bin", SepPlatform).String())
	assert.Equal(t, "Unknown", Op(9).String())
}
