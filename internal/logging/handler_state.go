package logging

import (
	"log/slog"
	"slices"
)

// handlerState is what the journal and buffer handlers carry between
// WithAttrs and WithGroup calls.
type handlerState struct {
	level  slog.Leveler
	attrs  []scopedAttr
	groups []string
}

// scopedAttr remembers the groups that were open when the attribute was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func (s handlerState) enabled(level slog.Level) bool {
	return level >= s.level.Level()
}

func (s handlerState) withAttrs(attrs []slog.Attr) handlerState {
	next := s
	next.attrs = slices.Clip(s.attrs)
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: s.groups, attr: a})
	}
	return next
}

func (s handlerState) withGroup(name string) handlerState {
	if name == "" {
		return s
	}
	next := s
	next.groups = append(slices.Clip(s.groups), name)
	return next
}

// each calls fn for every leaf attribute of the handler and of r, with the
// group path leading to it. Empty attributes are skipped and groups with an
// empty key are inlined.
func (s handlerState) each(r slog.Record, fn func(path []string, v slog.Value)) {
	for _, sa := range s.attrs {
		walkAttr(sa.groups, sa.attr, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		walkAttr(s.groups, a, fn)
		return true
	})
}

func walkAttr(groups []string, a slog.Attr, fn func(path []string, v slog.Value)) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clip(groups), a.Key)
		}
		for _, ga := range v.Group() {
			walkAttr(inner, ga, fn)
		}
		return
	}
	if a.Key == "" {
		return
	}
	fn(append(slices.Clip(groups), a.Key), v)
}
