package exprsafe

import "errors"

// errUnsupported is raised at parse time for any syntax outside the
// restricted grammar: attribute access, calls, arithmetic, lambdas,
// comprehensions, f-strings, anything this package does not explicitly
// recognize. It is a definition-time error, never swallowed.
var errUnsupported = errors.New("exprsafe: unsupported expression syntax")

// errEval marks a runtime evaluation failure (e.g. an identifier not
// present in the given roots, or a subscript out of range). Conditions
// fail open (treated as true) on errEval; transforms fall back to the
// original value and log the failure.
var errEval = errors.New("exprsafe: evaluation failed")
