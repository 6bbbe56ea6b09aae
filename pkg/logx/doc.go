// Package logx is autorun's structured logging layer over zerolog.
//
// Console output is human readable with a short timestamp and file:line
// caller; the optional file sink writes one JSON object per line.
package logx
