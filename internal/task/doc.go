// Package task defines download tasks and selects the subset of a link list
// that takes part in a run.
//
// # Selection
//
//	all            every task, in link-file order
//	single  -file  the task with that exact name
//	range   -start -end
//	               tasks[start..end], both inclusive
//
// Select is a pure function of its inputs. Validate rejects duplicate names
// and names that are not plain file names.
package task
