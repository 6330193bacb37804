package reaper

// nilIndex terminates a list
const nilIndex int32 = -1

type recordState uint8

const (
	stateFree recordState = iota
	stateActive
	stateReclaimed
)

// record tracks one child. Records live in the reaper slab and are linked
// by index so the reap pass never allocates.
type record struct {
	pid   int
	next  int32
	state recordState
}

// list is a singly linked list of slab indices. Keeping the tail makes
// append and splice O(1) so they are safe inside the critical section.
type list struct {
	head, tail int32
}

func newList() list {
	return list{head: nilIndex, tail: nilIndex}
}

func (l *list) empty() bool {
	return l.head == nilIndex
}

// append adds a single detached record at the tail
func (l *list) append(rs []*record, i int32) {
	rs[i].next = nilIndex
	if l.head == nilIndex {
		l.head, l.tail = i, i
		return
	}
	rs[l.tail].next = i
	l.tail = i
}

// splice moves all of o onto the tail of l
func (l *list) splice(rs []*record, o list) {
	if o.head == nilIndex {
		return
	}
	if l.head == nilIndex {
		*l = o
		return
	}
	rs[l.tail].next = o.head
	l.tail = o.tail
}

// popFront detaches and returns the head, or nilIndex when empty
func (l *list) popFront(rs []*record) int32 {
	i := l.head
	if i == nilIndex {
		return nilIndex
	}
	l.head = rs[i].next
	if l.head == nilIndex {
		l.tail = nilIndex
	}
	rs[i].next = nilIndex
	return i
}

// remove unlinks i from the list. It walks the list, so it is only used on
// detached lists outside the critical section.
func (l *list) remove(rs []*record, i int32) bool {
	if l.head == nilIndex {
		return false
	}
	if l.head == i {
		l.popFront(rs)
		return true
	}
	for prev, cur := l.head, rs[l.head].next; cur != nilIndex; prev, cur = cur, rs[cur].next {
		if cur == i {
			rs[prev].next = rs[cur].next
			if l.tail == cur {
				l.tail = prev
			}
			rs[cur].next = nilIndex
			return true
		}
	}
	return false
}

// take detaches the whole list, leaving l empty
func (l *list) take() list {
	o := *l
	*l = newList()
	return o
}

// indices walks the list; used by tests and diagnostics
func (l list) indices(rs []*record) []int32 {
	var ret []int32
	for cur := l.head; cur != nilIndex; cur = rs[cur].next {
		ret = append(ret, cur)
	}
	return ret
}
