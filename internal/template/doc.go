// Package template evaluates `${dotted.path}` expressions against a
// hierarchical, lazily-resolved ConfigContext tree.
//
// Resolution walks a dotted path one segment at a time: at each step, if the
// current node is itself a Context, the walk descends into it; if it is a
// LazyCallable, the callable is invoked and the walk continues with the
// result; if it is a string containing further `${...}` expressions, those
// are resolved recursively before the value is returned. Keys beginning
// with "_" are private and always resolve as missing. A stack of
// fully-qualified paths currently being resolved detects circular
// references; the final resolved value must be a primitive
// (string/number/bool) or resolution fails.
package template
