// Package model defines the core types shared by the logs, the indexes and
// the store.
//
// # Identity
//
//   - Ordinal: zero-based append position. It is the only identity a stored
//     record has and the join key between the vector log and the metadata log.
//
// # Data
//
//   - Record: one product review as it is stored in the metadata log.
//   - Hit: one ranked search match (ordinal plus distance).
package model
