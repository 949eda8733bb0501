// Package agent implements the reason-act-reason orchestration loop.
//
// One pass works in three phases: a non-streamed decision call offers the
// tool catalog to the model; any requested tools are executed strictly
// sequentially in the order the model emitted them, with results folded back
// into the session; a final token-streamed completion produces the answer.
// Progress and answer tokens are pushed to the caller as an ordered stream
// of fragments over a bounded channel, with a sentinel marking where status
// narration ends and durable answer text begins.
package agent
