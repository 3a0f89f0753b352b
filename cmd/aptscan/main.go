// Package main provides the aptscan CLI: the client-side orchestration
// layer of the scanning dashboard, driven from a terminal.
//
// Usage:
//
//	aptscan scan <target>
//	aptscan list
//	aptscan stats
//
// See --help for all available options.
package main

// main is the entry point for aptscan.
func main() {
	Execute()
}
