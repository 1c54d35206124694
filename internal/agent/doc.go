// Package agent contains the dispatch loop that turns natural-language
// requests into tool invocations. It asks the model which tools to run,
// executes them, feeds the results back, and repeats until the model
// produces a final answer or the round cap forces termination.
package agent
