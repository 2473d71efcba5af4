// Package encoder defines the text-to-vector contract used by reviewdb and
// ships the built-in implementations.
//
// Every Encoder has a fixed output dimension and is deterministic: the same
// text always produces a bit-identical vector. Errors are reported as
// ErrEncodingFailed; an encoder never truncates or pads its output.
//
// Implementations:
//
//   - [Hashing]: local feature-hashing encoder, no network.
//   - [OpenAI]: any OpenAI-compatible embeddings endpoint.
//   - [FuncEncoder]: adapter for a caller supplied function.
//   - [Checked]: wrapper that enforces the contract on another encoder.
package encoder
