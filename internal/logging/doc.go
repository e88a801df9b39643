// Package logging configures log/slog for vexus.
//
// By default logs go to stderr as text at the configured level. With
// --debug, structured JSON logs are also written to ~/.vexus/logs/vexus.log
// with size-based rotation into zstd-compressed archives.
package logging
