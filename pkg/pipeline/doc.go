// Package pipeline drives one structural model through the staged loop refinement
// protocol.
//
// A Controller owns the configuration of a run: which strategy each stage uses, the
// objective functions, the reference model and the checkpoint store. Apply then threads a
// single mutable model through the stages in a fixed order:
//
//	prepare, initial build, growth, constraints, remodel, midpoint statistics,
//	fullatom transition, intermediate consolidation, refine, idealize, relax,
//	final statistics
//
// Every stage that transforms the model is gated by its selector, where "no" disables it,
// and by the closure state reached by the remodel stage. Stages that take long are
// checkpointed under the run tag, so that calling Apply again with the same tag after an
// interruption resumes after the last completed stage.
//
// Strategies are resolved by name through a stage.Registry when the Controller is created,
// so an unknown name is reported before any model is touched. The only non-fatal abnormal
// outcome of Apply is StatusRetryRequested, returned when a strategy that cannot recover
// from a failed first closure asks for the whole unit of work to be retried.
//
// Statistics are written to the score table passed to Apply, in the order they are
// computed.
package pipeline
