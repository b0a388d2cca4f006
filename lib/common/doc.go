// Package common provides shared infrastructure used by the library and the
// command-line interface, most importantly the process-global leveled
// logging facade.
//
// Loggers are addressed by package name and created lazily via GetLogger;
// all loggers write to stdout in a uniform "LEVEL | name | message" format.
package common
