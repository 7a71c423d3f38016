// Package registry maps artifact names to the constructors that describe them.
//
// A Registry is built fresh for every installation run from a list of Modules
// (one per product) plus any catalog definitions, and is passed explicitly to
// the graph builder and the installer. There is no process-wide instance, so
// repeated or concurrent runs never observe each other's registrations.
//
// Constructors never fail: choosing a strategy is pure description. Platform
// and build-vs-download preference arrive as explicit values through Options
// and Config, which keeps every platform branch testable on any host.
package registry
