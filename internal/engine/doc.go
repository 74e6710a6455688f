// Package engine compiles block trees into linked modules.
//
// The engine is the entry point of the block renderer: it resolves a
// block's children, compiles every block at most once per name, loads the
// resulting module and invokes its entry behavior.
//
// ARCHITECTURE:
//
//	LoadBlock
//	  -> Resolve (depth first, declaration order)
//	       -> Cache.GetOrCompile(child)   one compilation per name
//	            -> FragmentCompiler      parse, compile, register style, publish
//	       -> substitute ./<child>.vue with the child's reference
//	  -> Cache.GetOrCompile(root)
//	  -> Host.Load(ref) -> Invoker
//
// Resolution is uniform: every block's children are resolved before the
// block itself is compiled, at any depth. A block that re-enters itself
// through its children fails the request with a CycleError.
//
// CRITICAL PATTERNS:
//
// Cache coherence:
// A block name maps to at most one reference until Cache.Clear. Concurrent
// misses for one name share a single compilation; failures are never stored.
//
// Logical clock:
// Compile and link records carry seq numbers from Clock.Next(), never
// wall-clock timestamps.
//
// Read-only inputs:
// The block registry is never mutated; rewritten child source is passed
// to the compiler by value.
package engine
