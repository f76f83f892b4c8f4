// Package engine defines the contract between the xslhost driver and a
// loaded XSLT engine provider: the shared data model, the four-operation
// Engine interface every provider implements, and the command/result
// marshaling protocol the two sides exchange data through.
//
// A provider shipped as a shared object exports a single factory symbol
// (see FactorySymbol) returning an Engine. In-process providers register a
// Factory with the host directly.
package engine

// FactorySymbol is the exported symbol name the loader resolves in a
// provider shared object.
const FactorySymbol = "NewEngine"

// Factory produces a fully initialized engine instance.
type Factory func() (Engine, error)

// Engine is the contract a loaded XSLT provider fulfills.
//
// The host guarantees a single active command per instance; implementations
// need no internal locking against concurrent commands. Shutdown is invoked
// exactly once, when the instance is being retired; after it returns the
// provider must hold no references to host-supplied memory.
type Engine interface {
	// Command handles a generic command. Implementations return Error for
	// command names they do not recognize; the host reports that as an
	// unknown command rather than a fatal condition.
	Command(cmd *Command) EngineState

	// Transform performs the transformation described by the command's
	// task, writing output solely through the result-buffer protocol.
	// On failure it returns the matching EngineState and must not leave
	// the result buffer partially dirty without signaling.
	Transform(cmd *Command) EngineState

	// AfterTransform runs unconditionally after Transform returns,
	// success or failure, so the provider can release job-scoped state
	// such as cached parsed documents. Its return value is informational.
	AfterTransform(cmd *Command) EngineState

	// Shutdown releases everything the provider holds. Failure during
	// shutdown cannot be signaled and is not retryable.
	Shutdown()
}

// TransformCommand is the command name that selects the Task body variant.
const TransformCommand = "transform"

// Body is the tagged command payload: either a transform task or a raw
// IO vector, never both.
type Body interface {
	isBody()
}

// TaskBody carries a transform task. It is the active variant iff the
// command name is TransformCommand.
type TaskBody struct {
	Task *Task
}

// VecBody carries generic command data.
type VecBody struct {
	Vec *IOVec
}

func (TaskBody) isBody() {}
func (VecBody) isBody()  {}

// Command is a single request unit exchanged between host and engine.
type Command struct {
	// Name tags the command; TransformCommand selects the TaskBody
	// variant of Body.
	Name string
	Body Body

	// Result is the growable output vector engines write into via the
	// result-buffer protocol.
	Result *IOVec

	// Context identifies the requester. Opaque to engines.
	Context *CallContext

	// Alloc is the sole sanctioned allocator for result-buffer memory.
	// Engines must not mix allocators.
	Alloc Allocator
}

// NewTransform builds a transform command carrying the given task, with a
// fresh result vector and the default allocator.
func NewTransform(task *Task, ctx *CallContext) *Command {
	return &Command{
		Name:    TransformCommand,
		Body:    TaskBody{Task: task},
		Result:  &IOVec{Type: Text},
		Context: ctx,
		Alloc:   DefaultAllocator,
	}
}

// NewCommand builds a generic command carrying raw vector data.
func NewCommand(name string, vec *IOVec, ctx *CallContext) *Command {
	return &Command{
		Name:    name,
		Body:    VecBody{Vec: vec},
		Result:  &IOVec{Type: Text},
		Context: ctx,
		Alloc:   DefaultAllocator,
	}
}
