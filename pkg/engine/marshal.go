package engine

import "sync"

// Allocator is the allocation discipline for result-buffer memory. Every
// byte an engine writes through the result protocol comes from the
// command's allocator and goes back to it on clear.
type Allocator interface {
	Alloc(n int) []byte
	Release(b []byte)
}

// DefaultAllocator recycles result buffers through a pool.
var DefaultAllocator Allocator = &poolAllocator{}

type poolAllocator struct {
	pool sync.Pool
}

func (a *poolAllocator) Alloc(n int) []byte {
	if v := a.pool.Get(); v != nil {
		b := v.([]byte)
		if cap(b) >= n {
			return b[:n]
		}
	}
	return make([]byte, n)
}

func (a *poolAllocator) Release(b []byte) {
	if b == nil {
		return
	}
	a.pool.Put(b[:0])
}

// TaskOf returns the task carried by cmd iff cmd is present and named
// TransformCommand. Any other name, body variant, or a nil command yields
// nil.
func TaskOf(cmd *Command) *Task {
	if cmd == nil || cmd.Name != TransformCommand {
		return nil
	}
	body, ok := cmd.Body.(TaskBody)
	if !ok {
		return nil
	}
	return body.Task
}

// AssignResultBuffer allocates a result buffer of size bytes via the
// command's allocator, marks the result vector as Text of that size, and
// returns the (empty) buffer. A nil command allocates nothing and returns
// nil.
func AssignResultBuffer(size int, cmd *Command) []byte {
	if cmd == nil || cmd.Result == nil {
		return nil
	}
	buf := allocatorOf(cmd).Alloc(size)
	cmd.Result.Type = Text
	cmd.Result.size = size
	cmd.Result.text = buf[:0]
	cmd.Result.dirty = false
	return cmd.Result.text
}

// WriteResultBuffer writes chunk into the command's result buffer. The
// first write on a clean buffer replaces any contents and marks the buffer
// dirty; every subsequent write appends. The buffer grows as needed, always
// through the command's allocator, so cumulative appends can never overrun
// it. Returns the full current contents, or nil when cmd or its result is
// absent.
func WriteResultBuffer(chunk []byte, cmd *Command) []byte {
	if cmd == nil || cmd.Result == nil {
		return nil
	}
	res := cmd.Result
	if !res.dirty {
		res.text = res.text[:0]
		res.dirty = true
	}
	need := len(res.text) + len(chunk)
	if need > cap(res.text) {
		grown := allocatorOf(cmd).Alloc(growSize(cap(res.text), need))
		grown = grown[:len(res.text)]
		copy(grown, res.text)
		if res.text != nil {
			allocatorOf(cmd).Release(res.text)
		}
		res.text = grown
		res.size = cap(grown)
	}
	res.text = append(res.text, chunk...)
	return res.text
}

// ClearResultBuffer releases the result buffer back to the command's
// allocator, clears the dirty flag, and nulls the payload. No-op when cmd
// or its result is absent.
func ClearResultBuffer(cmd *Command) {
	if cmd == nil || cmd.Result == nil {
		return
	}
	res := cmd.Result
	if res.text != nil {
		allocatorOf(cmd).Release(res.text)
	}
	res.text = nil
	res.size = 0
	res.dirty = false
}

func allocatorOf(cmd *Command) Allocator {
	if cmd.Alloc != nil {
		return cmd.Alloc
	}
	return DefaultAllocator
}

func growSize(have, need int) int {
	if have == 0 {
		have = 64
	}
	for have < need {
		have *= 2
	}
	return have
}
