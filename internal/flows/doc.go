// Package flows contains pure-function orchestrators for Engine operations.
//
// Each Run function takes a typed dependency struct, so flows can be tested
// with plain function fakes and the Engine type stays thin. Flows do not own
// the session store, limiter, audit dispatcher or metrics; the Engine does.
//
// Flows must not import the root portal package (import cycle) and must not
// perform I/O except through their dependencies.
package flows
