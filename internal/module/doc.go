// Package module turns compiled source into loadable module references.
//
// A Host publishes module text and hands back an opaque ir.Reference with
// object-URL semantics: every Publish mints a fresh reference, the reference
// stays valid until Release, and Load resolves it (and everything it
// imports) into a linked Module graph.
//
// Two hosts exist:
//   - Table: in-memory, map backed (this package)
//   - store.Store: SQLite backed, also records a compile log
//
// Both share the same linker (Link), so load semantics are identical.
//
// # Specifiers
//
// Import specifiers fall into three classes:
//   - references ("blob:..."): must resolve in the host or Load fails
//   - relative paths ("./B.vue", "../x", "/x"): never loadable; finding one
//     means a child reference was not substituted
//   - bare names ("vue"): externals provided by the embedding runtime;
//     recorded on the Module, not loaded
package module
