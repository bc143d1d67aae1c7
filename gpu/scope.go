package gpu

// Scope collects release actions for GPU objects and runs them in reverse
// order of registration. A component builds its objects inside a scope and
// defers Release; on success it either Dismisses the scope (ownership moves to
// the caller) or keeps it as its own teardown list.
//
//	scope := &gpu.Scope{}
//	defer scope.Release()
//	layout, err := device.CreatePipelineLayout(info)
//	if err != nil {
//		return nil, err
//	}
//	scope.Add(layout)
//	...
//	p.scope = scope.Dismiss()
type Scope struct {
	actions []func()
}

// Add registers d to be destroyed on Release. Nil values are ignored.
func (s *Scope) Add(d Destroyer) {
	if d == nil {
		return
	}
	s.actions = append(s.actions, d.Destroy)
}

// Defer registers an arbitrary release action.
func (s *Scope) Defer(fn func()) {
	if fn == nil {
		return
	}
	s.actions = append(s.actions, fn)
}

// Adopt takes over every action of other, which is left empty. Adopted
// actions run before the ones already registered in s.
func (s *Scope) Adopt(other *Scope) {
	if other == nil {
		return
	}
	s.actions = append(s.actions, other.actions...)
	other.actions = nil
}

// Dismiss returns a new scope holding all registered actions and leaves s
// empty, so a deferred Release on s becomes a no-op.
func (s *Scope) Dismiss() *Scope {
	kept := &Scope{actions: s.actions}
	s.actions = nil
	return kept
}

// Release runs every registered action, newest first. Calling it again does
// nothing.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	for i := len(s.actions) - 1; i >= 0; i-- {
		s.actions[i]()
	}
	s.actions = nil
}

// Len is the number of pending release actions.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.actions)
}
