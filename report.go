package harness

import (
	"fmt"
	"io"
	"sync"
)

// Reporter writes the "<node>: <value>" status lines. It is safe for
// concurrent use; a nil Reporter discards everything.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

func (r *Reporter) Report(node string, value any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s: %v\n", node, value)
}
