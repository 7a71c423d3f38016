// Package installer materialises a resolved dependency graph into an
// Environment Directory.
//
// An installation run goes through these stages:
//
//  1. Sync: the directory is brought to its baseline and the manifest loaded.
//  2. Build: the requested references are resolved into a dependency graph.
//     Unknown names, cycles and version conflicts fail here, before anything
//     on disk changes.
//  3. Pre-flight: every resolved artifact is checked against the manifest. A
//     pinned version that differs from the one already installed is a
//     conflict.
//  4. Execute: artifacts are installed in dependency order. Each one is
//     claimed before its strategy starts, skipped when the manifest already
//     records it, and recorded only once its strategy succeeded.
//
// A failure stops the run. Artifacts recorded before the failure stay
// recorded, so a corrected re-run resumes where the failed one stopped.
package installer
