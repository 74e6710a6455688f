// Package sfc is a small single-file-component compiler.
//
// It covers the subset of the Vue SFC format that blocks use:
//
//   - Parse splits a .vue source into template, script, script setup
//     and style blocks (custom blocks are kept but ignored)
//   - CompileScript normalises the script (and script setup) into one
//     module with a default export and reports top-level setup bindings
//   - CompileTemplate turns the template into a module exporting render,
//     which returns the rendered markup as a string
//   - CompileStyle rewrites scoped selectors with the block's data-v
//     attribute
//
// It is not a general Vue compiler: directives other than attribute binding
// and event listeners are passed through as plain attributes, and only plain
// CSS (or postcss) styles are accepted.
package sfc
