// Package logx is tasktable's structured logging, a thin layer over zerolog.
//
// Console output is human readable (short timestamp and caller) and goes to
// stderr, leaving stdout to task output. The optional file sink keeps JSON
// lines. Loggers are plain values: copy them, derive component loggers with
// With, and use the zero value where nothing should be written.
package logx
