package supervisor

import (
	"errors"
	"testing"

	"github.com/smazurov/actiond/internal/catalog"
)

func registered(roots ...string) []*Action {
	actions := make([]*Action, len(roots))
	for i, root := range roots {
		actions[i] = newAction(catalog.Action{Name: "action-" + string(rune('a'+i)), Main: "index.js", Root: root})
	}
	return actions
}

func TestTraceAttributor(t *testing.T) {
	actions := registered("/skills/weather", "/skills/lights", "/skills/light")

	tests := []struct {
		name   string
		frames []string
		want   string
	}{
		{
			name:   "single match",
			frames: []string{"Error: boom", "    at handler (/skills/weather/index.js:3:9)"},
			want:   "action-a",
		},
		{
			name: "first matching frame wins",
			frames: []string{
				"    at onIntent (/skills/lights/lib/hue.js:10:2)",
				"    at dispatch (/skills/weather/index.js:3:9)",
			},
			want: "action-b",
		},
		{
			name:   "earliest position in frame wins",
			frames: []string{"/skills/weather/node_modules/x calling /skills/lights/index.js"},
			want:   "action-a",
		},
		{
			name:   "equal position goes to registration order",
			frames: []string{"    at /skills/lights/index.js:1:1"},
			want:   "action-b",
		},
		{
			name:   "no frame matches",
			frames: []string{"    at internal/process/task_queues.js:95:5"},
			want:   "",
		},
		{
			name:   "no frames",
			frames: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TraceAttributor{}.Attribute(Failure{Err: errors.New("boom"), Frames: tt.frames}, actions)
			name := ""
			if got != nil {
				name = got.Name
			}
			if name != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, name)
			}
		})
	}
}

func TestTraceAttributorIsDeterministic(t *testing.T) {
	actions := registered("/skills/a", "/skills/a")
	f := Failure{Frames: []string{"at /skills/a/index.js"}}
	for range 50 {
		if got := (TraceAttributor{}).Attribute(f, actions); got != actions[0] {
			t.Fatalf("Expected first registered action every time, got %v", got)
		}
	}
}

func TestTraceAttributorSkipsEmptyRoot(t *testing.T) {
	actions := registered("", "/skills/b")
	got := TraceAttributor{}.Attribute(Failure{Frames: []string{"at /skills/b/x.js"}}, actions)
	if got != actions[1] {
		t.Errorf("Expected action with non-empty root, got %v", got)
	}
}

func TestOriginAttributor(t *testing.T) {
	actions := registered("/skills/weather", "/skills/lights")
	attr := OriginAttributor{Fallback: TraceAttributor{}}

	got := attr.Attribute(Failure{Origin: "action-b", Frames: []string{"at /skills/weather/index.js"}}, actions)
	if got != actions[1] {
		t.Errorf("Expected origin tag to win, got %v", got)
	}

	got = attr.Attribute(Failure{Frames: []string{"at /skills/weather/index.js"}}, actions)
	if got != actions[0] {
		t.Errorf("Expected fallback to frames, got %v", got)
	}

	got = OriginAttributor{}.Attribute(Failure{Origin: "missing"}, actions)
	if got != nil {
		t.Errorf("Expected nil without fallback, got %v", got)
	}
}

func TestNewAttributor(t *testing.T) {
	for _, name := range []string{"", "trace", "origin"} {
		if _, ok := NewAttributor(name); !ok {
			t.Errorf("Expected strategy %q to be known", name)
		}
	}
	if _, ok := NewAttributor("guess"); ok {
		t.Error("Expected unknown strategy to be rejected")
	}
}

func TestFramesFromStack(t *testing.T) {
	frames := FramesFromStack("Error: boom\n    at a (/x.js:1:1)\n\n   \n    at b (/y.js:2:2)\n")
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d: %q", len(frames), frames)
	}
	if frames[1] != "at a (/x.js:1:1)" {
		t.Errorf("Expected trimmed frame, got %q", frames[1])
	}
}
