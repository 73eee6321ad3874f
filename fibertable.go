package reactor

// fiberTable owns the fixed-size array of fiber slots plus the two
// intrusive doubly-linked lists (free list, ready queue) that share node
// storage with the slots themselves. A slot belongs to at most one list at
// a time.
type fiberTable struct {
	slots []fiberNode

	freeHead, freeTail   FiberId
	readyHead, readyTail FiberId
	readyLen             int
}

func newFiberTable(n int, slab *fiberSlab, slabSize int) *fiberTable {
	t := &fiberTable{slots: make([]fiberNode, n)}
	for i := range t.slots {
		t.slots[i].id = FiberId(i)
		t.slots[i].fib = newFibril()
		if slab != nil {
			t.slots[i].fls = slab.slabFor(i, slabSize)
		}
	}
	// Slots 0 (main) and 1 (idle) are special and never enter the free
	// list; everything else starts free. pushFree prepends, so the list
	// runs in descending index order (the highest slot is handed out first).
	t.freeHead, t.freeTail = 0, 0
	for i := 2; i < n; i++ {
		t.pushFree(FiberId(i))
	}
	t.slots[mainFiberID].flags |= FlagSpecial
	t.slots[idleFiberID].flags |= FlagSpecial
	return t
}

func (t *fiberTable) get(id FiberId) *fiberNode { return &t.slots[id] }

func (t *fiberTable) lookup(handle FiberHandle) *fiberNode {
	if int(handle.id) >= len(t.slots) {
		return nil
	}
	n := &t.slots[handle.id]
	if n.incarnation != handle.incarnation {
		return nil
	}
	return n
}

// --- free list (LIFO; order of reuse does not matter) ---

func (t *fiberTable) pushFree(id FiberId) {
	n := t.get(id)
	n.linked = true
	if t.freeHead == 0 && t.freeTail == 0 {
		t.freeHead, t.freeTail = id, id
		n.prev, n.next = 0, 0
		return
	}
	n.next = t.freeHead
	n.prev = 0
	t.get(t.freeHead).prev = id
	t.freeHead = id
}

func (t *fiberTable) popFree() (FiberId, bool) {
	if t.freeHead == 0 && t.freeTail == 0 {
		return 0, false
	}
	id := t.freeHead
	n := t.get(id)
	n.linked = false
	if t.freeHead == t.freeTail {
		t.freeHead, t.freeTail = 0, 0
	} else {
		t.freeHead = n.next
		t.get(t.freeHead).prev = 0
	}
	n.prev, n.next = 0, 0
	return id, true
}

// --- ready queue (FIFO, with LIFO "immediate" prepend) ---

// scheduleAppend and schedulePrepend only manage ready-queue membership
// (flags + the intrusive list); they deliberately leave FiberState alone
// since a freshly-spawned fiber needs to stay StateStarting while on the
// ready queue for the first time (see Spawn), while a fiber re-queued
// after yielding/sleeping/resuming should become StateScheduled — callers
// set the field to the value appropriate for their own case.
func (t *fiberTable) scheduleAppend(id FiberId) {
	n := t.get(id)
	if n.linked && (n.flags&FlagScheduled) != 0 {
		return
	}
	n.linked = true
	n.flags |= FlagScheduled
	if t.readyLen == 0 {
		t.readyHead, t.readyTail = id, id
		n.prev, n.next = 0, 0
	} else {
		n.prev = t.readyTail
		n.next = 0
		t.get(t.readyTail).next = id
		t.readyTail = id
	}
	t.readyLen++
}

func (t *fiberTable) schedulePrepend(id FiberId) {
	n := t.get(id)
	if n.linked && (n.flags&FlagScheduled) != 0 {
		return
	}
	n.linked = true
	n.flags |= FlagScheduled
	if t.readyLen == 0 {
		t.readyHead, t.readyTail = id, id
		n.prev, n.next = 0, 0
	} else {
		n.next = t.readyHead
		n.prev = 0
		t.get(t.readyHead).prev = id
		t.readyHead = id
	}
	t.readyLen++
}

func (t *fiberTable) popReady() (FiberId, bool) {
	if t.readyLen == 0 {
		return 0, false
	}
	id := t.readyHead
	n := t.get(id)
	n.linked = false
	n.flags &^= FlagScheduled
	if t.readyLen == 1 {
		t.readyHead, t.readyTail = 0, 0
	} else {
		t.readyHead = n.next
		t.get(t.readyHead).prev = 0
	}
	n.prev, n.next = 0, 0
	t.readyLen--
	return id, true
}

func (t *fiberTable) readyQueueLen() int { return t.readyLen }
