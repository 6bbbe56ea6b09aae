// Package task runs the external program the loop is scheduling.
//
// The loop only depends on the Runner interface; ExecRunner is the OS
// process implementation. A failed run is reported as *TaskExecutionError.
package task
