// Package logx is spawnme's logging layer on zerolog.
//
// A Service owns the console and file sinks and can be reconfigured while
// running; Loggers taken from it are cheap values carrying fixed fields,
// usually a Component tag. The console is human-readable, the file is JSON.
package logx
