// Package index defines the similarity index contract used by reviewdb.
//
// Implementations:
//
//   - flat: exact brute-force search over a contiguous in-memory arena
//   - hnsw: hierarchical navigable small world graph for approximate search
//
// Every implementation ranks by distance (lower is closer) and breaks ties
// by the lower ordinal, so results are deterministic. Searches take a limit:
// only ordinals below it are eligible, which lets callers search a
// consistent prefix while writers keep appending.
package index
