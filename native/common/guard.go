package common

import "strings"

// ErrModulePaused is returned for mutations against a module an operator has
// paused.
var ErrModulePaused = NewError(KindStateConflict, "ModulePaused", "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[strings.ToLower(strings.TrimSpace(module))]
}

// NewStaticPauses normalises the supplied module names.
func NewStaticPauses(modules []string) StaticPauses {
	out := make(StaticPauses, len(modules))
	for _, m := range modules {
		trimmed := strings.ToLower(strings.TrimSpace(m))
		if trimmed == "" {
			continue
		}
		out[trimmed] = true
	}
	return out
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return Wrapf(ErrModulePaused, "%s", module)
	}
	return nil
}
