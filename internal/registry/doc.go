// Package registry loads block registries from disk.
//
// A block directory holds one "<name>.vue" file per block and, optionally,
// a manifest named blocks.cue or blocks.yaml:
//
//	engine: "v0.3.0"          // minimum engine version (semver)
//	blocks: {
//		Card:  {childBlocks: ["Badge"]}
//		Badge: {file: "badge.vue"}
//		Inline: {code: "<template><b>x</b></template>"}
//	}
//
// Blocks without a manifest entry, or whose entry omits childBlocks, get
// their children inferred from "./<Name>.vue" imports in their source.
package registry
