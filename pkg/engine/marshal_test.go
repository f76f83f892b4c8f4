package engine

import (
	"bytes"
	"testing"
)

// countingAllocator tracks every allocation so tests can verify the single
// allocator discipline.
type countingAllocator struct {
	allocs   int
	releases int
}

func (a *countingAllocator) Alloc(n int) []byte {
	a.allocs++
	return make([]byte, n)
}

func (a *countingAllocator) Release(b []byte) {
	if b != nil {
		a.releases++
	}
}

func newTestTransform() (*Command, *countingAllocator) {
	task := &Task{
		Input:      BufferDocument([]byte("<doc/>")),
		Stylesheet: BufferDocument([]byte("<xsl:stylesheet/>")),
	}
	cmd := NewTransform(task, &CallContext{CallerPID: 42})
	alloc := &countingAllocator{}
	cmd.Alloc = alloc
	return cmd, alloc
}

func TestTaskOf(t *testing.T) {
	task := &Task{Input: BufferDocument([]byte("<a/>"))}

	tests := []struct {
		name string
		cmd  *Command
		want bool
	}{
		{
			name: "transform command yields task",
			cmd:  NewTransform(task, nil),
			want: true,
		},
		{
			name: "other command name yields nil",
			cmd:  &Command{Name: "status", Body: TaskBody{Task: task}},
			want: false,
		},
		{
			name: "vector body yields nil",
			cmd:  NewCommand(TransformCommand, NewTextVec([]byte("x")), nil),
			want: false,
		},
		{
			name: "nil command yields nil",
			cmd:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaskOf(tt.cmd)
			if tt.want && got == nil {
				t.Error("expected task, got nil")
			}
			if !tt.want && got != nil {
				t.Error("expected nil, got task")
			}
		})
	}
}

func TestAssignResultBuffer(t *testing.T) {
	cmd, alloc := newTestTransform()

	AssignResultBuffer(128, cmd)

	if got := cmd.Result.Size(); got != 128 {
		t.Errorf("expected size 128, got %d", got)
	}
	if cmd.Result.Type != Text {
		t.Errorf("expected Text result, got %v", cmd.Result.Type)
	}
	if cmd.Result.Dirty() {
		t.Error("freshly assigned buffer must be clean")
	}
	if alloc.allocs != 1 {
		t.Errorf("expected 1 allocation, got %d", alloc.allocs)
	}

	if got := AssignResultBuffer(16, nil); got != nil {
		t.Error("nil command must not allocate")
	}
}

func TestWriteResultBufferAppends(t *testing.T) {
	cmd, _ := newTestTransform()
	AssignResultBuffer(64, cmd)

	WriteResultBuffer([]byte("A"), cmd)
	got := WriteResultBuffer([]byte("B"), cmd)

	if !bytes.Equal(got, []byte("AB")) {
		t.Errorf("expected \"AB\", got %q", got)
	}
	if !bytes.Equal(cmd.Result.Buffer(), []byte("AB")) {
		t.Errorf("result buffer holds %q, want \"AB\"", cmd.Result.Buffer())
	}
	if !cmd.Result.Dirty() {
		t.Error("written buffer must be dirty")
	}
}

func TestWriteResultBufferFirstWriteReplaces(t *testing.T) {
	cmd, _ := newTestTransform()
	AssignResultBuffer(64, cmd)

	WriteResultBuffer([]byte("stale"), cmd)
	ClearResultBuffer(cmd)
	got := WriteResultBuffer([]byte("fresh"), cmd)

	if !bytes.Equal(got, []byte("fresh")) {
		t.Errorf("first write after clear must replace, got %q", got)
	}
}

func TestWriteResultBufferGrows(t *testing.T) {
	cmd, alloc := newTestTransform()
	AssignResultBuffer(4, cmd)

	chunk := bytes.Repeat([]byte("x"), 100)
	WriteResultBuffer(chunk, cmd)
	got := WriteResultBuffer(chunk, cmd)

	if len(got) != 200 {
		t.Errorf("expected 200 bytes after growth, got %d", len(got))
	}
	if alloc.allocs < 2 {
		t.Error("growth must go through the command allocator")
	}
	if alloc.releases == 0 {
		t.Error("outgrown buffers must be released to the allocator")
	}
}

func TestWriteResultBufferNilSafe(t *testing.T) {
	if got := WriteResultBuffer([]byte("x"), nil); got != nil {
		t.Error("nil command must be a no-op")
	}
	if got := WriteResultBuffer([]byte("x"), &Command{}); got != nil {
		t.Error("nil result must be a no-op")
	}
}

func TestClearResultBuffer(t *testing.T) {
	cmd, alloc := newTestTransform()
	AssignResultBuffer(64, cmd)
	WriteResultBuffer([]byte("payload"), cmd)

	ClearResultBuffer(cmd)

	if cmd.Result.Dirty() {
		t.Error("cleared buffer must not be dirty")
	}
	if cmd.Result.Buffer() != nil {
		t.Error("cleared buffer must have a nulled payload")
	}
	if alloc.releases != 1 {
		t.Errorf("expected 1 release, got %d", alloc.releases)
	}

	// Absent command or result is a no-op, not a failure.
	ClearResultBuffer(nil)
	ClearResultBuffer(&Command{})
}

func TestRoundTrip(t *testing.T) {
	cmd, _ := newTestTransform()

	AssignResultBuffer(8, cmd)
	WriteResultBuffer([]byte("A"), cmd)
	WriteResultBuffer([]byte("B"), cmd)

	if !bytes.Equal(cmd.Result.Buffer(), []byte("AB")) || !cmd.Result.Dirty() {
		t.Fatalf("expected dirty \"AB\", got dirty=%v %q", cmd.Result.Dirty(), cmd.Result.Buffer())
	}

	ClearResultBuffer(cmd)

	if cmd.Result.Dirty() || cmd.Result.Buffer() != nil {
		t.Error("clear must reset dirty and release the payload")
	}
}
