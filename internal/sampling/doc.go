// Package sampling holds small reference implementations of the collaborators the pipeline
// controller delegates to: region detection, remodel, relax and refine strategies, side
// chain packing and idealization. They move alpha carbons with simple geometric rules and
// score the result with the objective they are handed. They are meant to make the pipeline
// runnable end to end, not to model physics.
package sampling
