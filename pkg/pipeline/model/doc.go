// Package model provides the data structures shared by the pipeline packages.
// It defines the structural model threaded through the stages, the score table the
// pipeline reports into, the restraints and fragment libraries it reads, and the hooks
// that observe stage execution.
package model
