package engine

// DriverState reports loader- and dispatch-level outcomes: library
// resolution, command routing, allocation failure.
type DriverState int

const (
	Success DriverState = iota
	InitOk
	LibraryNotFound
	EntryPointNotFound
	InitFailed
	OutOfMemory
	UnknownCommand
	UnsupportedOperationError
)

func (s DriverState) String() string {
	switch s {
	case Success:
		return "success"
	case InitOk:
		return "init_ok"
	case LibraryNotFound:
		return "library_not_found"
	case EntryPointNotFound:
		return "entry_point_not_found"
	case InitFailed:
		return "init_failed"
	case OutOfMemory:
		return "out_of_memory"
	case UnknownCommand:
		return "unknown_command"
	case UnsupportedOperationError:
		return "unsupported_operation"
	}
	return "unknown"
}

// EngineState reports per-transform outcomes.
type EngineState int

const (
	Ok EngineState = iota
	Error
	XMLParseError
	XSLCompileError
	XSLTransformError
	OutOfMemoryError
)

func (s EngineState) String() string {
	switch s {
	case Ok:
		return "ok"
	case Error:
		return "error"
	case XMLParseError:
		return "xml_parse_error"
	case XSLCompileError:
		return "xsl_compile_error"
	case XSLTransformError:
		return "xsl_transform_error"
	case OutOfMemoryError:
		return "out_of_memory"
	}
	return "unknown"
}

// InputType identifies what an input document's payload means: a file URI,
// the document content itself, or a stream handle.
type InputType int

const (
	FileInput InputType = iota + 1
	BufferInput
	StreamInput
)

// DataFormat identifies which payload variant of an IOVec is in use.
type DataFormat int

const (
	Binary DataFormat = iota
	Object
	Text
	Opaque
)

// IOVec carries data between the host and an engine. The payload is either
// a text buffer or an opaque value; accessors check the declared format so
// the inactive variant can never be read. The dirty flag distinguishes a
// never-written buffer from one holding content and is meaningful only for
// Text vectors.
type IOVec struct {
	dirty  bool
	Type   DataFormat
	size   int
	text   []byte
	opaque any
}

// NewTextVec returns a Text vector holding b as its payload.
func NewTextVec(b []byte) *IOVec {
	return &IOVec{Type: Text, size: len(b), text: b, dirty: len(b) > 0}
}

// NewOpaqueVec returns an Opaque vector wrapping engine-private data.
func NewOpaqueVec(data any) *IOVec {
	return &IOVec{Type: Opaque, opaque: data}
}

// Dirty reports whether the vector has been written to.
func (v *IOVec) Dirty() bool {
	return v != nil && v.dirty
}

// Size returns the declared size of the vector, or -1 when the vector is
// absent.
func (v *IOVec) Size() int {
	if v == nil {
		return -1
	}
	return v.size
}

// Buffer returns the text payload, or nil when the vector is absent or not
// of Text format.
func (v *IOVec) Buffer() []byte {
	if v == nil || v.Type != Text {
		return nil
	}
	return v.text
}

// OpaqueData returns the opaque payload, or nil when the vector is absent or
// not of Opaque format.
func (v *IOVec) OpaqueData() any {
	if v == nil || v.Type != Opaque {
		return nil
	}
	return v.opaque
}

// InputDocument describes where transformation input or stylesheet content
// comes from.
type InputDocument struct {
	Type InputType
	Vec  *IOVec
}

// FileDocument returns an input document referring to a file by URI or path.
func FileDocument(uri string) *InputDocument {
	return &InputDocument{Type: FileInput, Vec: NewTextVec([]byte(uri))}
}

// BufferDocument returns an input document holding its content directly.
func BufferDocument(content []byte) *InputDocument {
	return &InputDocument{Type: BufferInput, Vec: NewTextVec(content)}
}

// Buffer returns the document's text payload, or nil when the document, its
// vector, or the Text variant is absent.
func (d *InputDocument) Buffer() []byte {
	if d == nil {
		return nil
	}
	return d.Vec.Buffer()
}

// Size returns the document's payload size, or -1 when the document or its
// vector is absent.
func (d *InputDocument) Size() int {
	if d == nil {
		return -1
	}
	return d.Vec.Size()
}

// Param is one stylesheet parameter.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Params is the ordered parameter list attached to a transform task.
// Construction appends to the tail; duplicate keys are permitted and are
// delivered to the engine in original order. Engines choose their own
// override policy.
type Params []Param

// Append returns the list with a parameter appended at the tail.
func (p Params) Append(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Task is a tasked XSLT transformation: the input document, the stylesheet
// document, and the parameter list (possibly empty).
type Task struct {
	Input      *InputDocument
	Stylesheet *InputDocument
	Params     Params
}

// CallContext correlates a command with the host-side requester. It is
// opaque pass-through data as far as engines are concerned.
type CallContext struct {
	Port      any
	CallerPID int
}
