// Package loop implements the scheduler loop: load the configuration
// document, run the task, sleep frequencyMinutes*60 seconds, repeat.
//
// The loop is an explicit state machine:
//
//	LoadConfig -> RunTask -> Sleep -> LoadConfig -> ...
//
// A config error or a failed task moves it to the terminal Failed state and
// Run returns that error; nothing is retried. Cancelling the context passed
// to Run moves it to the terminal Stopped state. cmd/autorun never cancels,
// so in production the loop only ends on error or when the process is killed.
package loop
