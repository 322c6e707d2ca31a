package types

// StateSnapshot is the primary's engine state as carried by run:domain:fn.
type StateSnapshot struct {
	// Runnable is the currently executing runnable.
	Runnable *SerializedRunnable `msgpack:"runnable" json:"runnable" yaml:"runnable"`
	// ViewportWidth is the primary's viewport width in pixels.
	ViewportWidth int `msgpack:"viewport_width" json:"viewport_width" yaml:"viewport_width"`
	// ViewportHeight is the primary's viewport height in pixels.
	ViewportHeight int `msgpack:"viewport_height" json:"viewport_height" yaml:"viewport_height"`
	// RedirectionCount is per-origin redirect counting. The secondary never
	// carries it over.
	RedirectionCount map[string]int `msgpack:"redirection_count,omitempty" json:"redirection_count,omitempty" yaml:"redirection_count,omitempty"`
	// Extra holds the remaining transient engine fields, merged verbatim.
	Extra map[string]any `msgpack:"extra,omitempty" json:"extra,omitempty" yaml:"extra,omitempty"`
}
