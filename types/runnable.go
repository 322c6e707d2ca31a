package types

// RunnableType is the kind tag of a runnable.
type RunnableType string

// Known runnable kinds. Any other string is carried through untouched.
const (
	RunnableTypeTest  RunnableType = "test"
	RunnableTypeSuite RunnableType = "suite"
	RunnableTypeHook  RunnableType = "hook"
)

// SerializedRunnable is the flattened, transferable form of a test or suite.
// Parent forms a finite chain whose depth equals the suite nesting level.
type SerializedRunnable struct {
	// ID is the stable runnable identifier.
	ID string `msgpack:"id" json:"id" yaml:"id"`
	// Type is the kind tag.
	Type RunnableType `msgpack:"type" json:"type" yaml:"type"`
	// Title is the runnable's own title.
	Title string `msgpack:"title" json:"title" yaml:"title"`
	// Ctx is the execution context object shared by the runnable's hooks.
	Ctx map[string]any `msgpack:"ctx" json:"ctx" yaml:"ctx"`
	// Timeout is the runnable timeout in milliseconds.
	Timeout int64 `msgpack:"timeout" json:"timeout" yaml:"timeout"`
	// TitlePath is the display path captured in the originating context.
	TitlePath []string `msgpack:"title_path" json:"title_path" yaml:"title_path"`
	// Parent is the enclosing runnable, nil at the root.
	Parent *SerializedRunnable `msgpack:"parent,omitempty" json:"parent,omitempty" yaml:"parent,omitempty"`
}

// Depth returns the number of ancestors in the parent chain.
func (r *SerializedRunnable) Depth() int {
	depth := 0
	for p := r.Parent; p != nil; p = p.Parent {
		depth++
	}
	return depth
}
