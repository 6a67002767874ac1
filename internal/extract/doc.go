// Package extract turns semi-structured CLI output into typed records.
//
// A RuleSet declares named value slots (each with a value shape) and an
// ordered list of line patterns. Compile validates the rule set once and
// returns an immutable Template; Template.Records walks the text line by line,
// lets the first matching pattern bind its slots into an accumulator and emits
// a Record each time a boundary pattern opens a new entry.
//
// Rule sets are plain data. The built-in tables for the Cisco neighbor,
// version and inventory commands are embedded YAML files and can be replaced
// per command from disk.
package extract
