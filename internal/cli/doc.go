// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates CLI flags and MOVEBOOT_* environment defaults into the
// application's internal configuration.
package cli
