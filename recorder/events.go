package recorder

import "fmt"

// EventSink receives the two event streams the UI layer consumes: a
// free-text diagnostic stream and caption updates carrying each emitted
// transcript. Both are best-effort; implementations must not block.
type EventSink interface {
	Diagnostic(msg string)
	Caption(text string)
}

type nopSink struct{}

func (nopSink) Diagnostic(string) {}
func (nopSink) Caption(string)    {}

// diagf formats onto the diagnostic stream.
func diagf(sink EventSink, format string, args ...any) {
	sink.Diagnostic(fmt.Sprintf(format, args...))
}
