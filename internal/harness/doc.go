// Package harness provides conformance testing for block registries.
//
// The harness loads a block registry, drives a real engine through a list
// of steps, and checks the resulting compile log, cache and style document
// against assertions. Traces compare byte for byte against golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	dir: blocks/card          # block directory, relative to the scenario
//	blocks:                   # and/or inline blocks (override dir)
//	  Card:
//	    code: "<template>...</template>"
//	    childBlocks: [Badge]
//	steps:
//	  - load: Card
//	    expect:
//	      components: 2
//	  - compile: Missing
//	    expect:
//	      error: UNKNOWN_BLOCK
//	  - clear: true           # empty the cache
//	  - warm: [Card]          # or warm_all: true
//	assertions:
//	  - type: compile_count
//	    block: Badge
//	    count: 1
//	  - type: final_state
//	    table: compilations
//	    where: { block: Badge }
//	    expect: { scope_id: "data-v-id00000001" }
//
// # Assertion Types
//
//   - trace_contains: a compile of block, or a link of parent -> child
//   - compile_order: blocks were first compiled in the given order
//   - compile_count: block was compiled exactly N times
//   - cache_size: the cache holds exactly N blocks
//   - style_contains: the style document (or the sheet under key) contains css
//   - final_state: queries a store table and verifies expected values
//
// # Deterministic Testing
//
// Every scenario runs on a fresh testutil.Stack:
//   - Sequential compile ids ("id00000001", ...)
//   - Sequential references ("blob:h/1", ...)
//   - In-memory SQLite database (isolated per scenario)
//
// This ensures identical traces across runs for golden file comparison.
// Warm steps compile concurrently, so scenarios with golden files should
// warm at most one root.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/two_level.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
