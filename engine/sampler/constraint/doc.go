// Package constraint implements the two constrained-decoding backends named
// in sampling requests: JSON Schema and regular expression. Both track a
// small amount of state across calls (an FSM node, in the terminology used
// elsewhere in this codebase) and are consulted by the sampler's constraint
// stage once per candidate token before temperature and filtering run.
package constraint
