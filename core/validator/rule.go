package validator

// Rule pairs a predicate with the error it raises when the predicate fails.
// A Rule with a nil Check always passes.
type Rule struct {
	Check func() bool
	Error ValidationError
}

// Passes runs the rule's predicate, treating a nil Check as a pass.
func (r Rule) Passes() bool {
	if r.Check == nil {
		return true
	}
	return r.Check()
}
