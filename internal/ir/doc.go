// Package ir provides the shared data model for the block renderer.
//
// This package contains type definitions and content hashing only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// block model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - BlockDefinition and BlockRegistry are read-only once handed to the engine
//   - A child is referenced in parent source by its ChildPath ("./<name>.vue")
//   - Content hashes use RFC 8785 canonical JSON with NFC-normalised strings
//   - References are opaque: only the module host interprets them
package ir
