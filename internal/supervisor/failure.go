package supervisor

import "strings"

// Kind classifies a failure signal.
type Kind int

const (
	// KindException is an error raised at a known position; it carries frames.
	KindException Kind = iota
	// KindRejection is an asynchronous rejection with no call-stack position.
	// Rejections are logged and never attributed.
	KindRejection
)

func (k Kind) String() string {
	if k == KindRejection {
		return "rejection"
	}
	return "exception"
}

// Failure is a raw failure signal as it reaches the funnel.
type Failure struct {
	Kind Kind
	Err  error
	// Frames are textual descriptions of where the failure originated,
	// innermost first (stack lines, stderr lines).
	Frames []string
	// Origin names the action whose task reported the failure, if known.
	Origin string
}

// FramesFromStack splits a multi-line stack trace into frames,
// dropping blank lines.
func FramesFromStack(stack string) []string {
	lines := strings.Split(stack, "\n")
	frames := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			frames = append(frames, line)
		}
	}
	return frames
}
