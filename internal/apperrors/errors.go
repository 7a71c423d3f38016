// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package apperrors classifies every failure an installation run can surface.
//
// Each failure carries one sentinel Kind, so callers branch with errors.Is
// without parsing messages. The underlying cause stays reachable through the
// same errors.Is / errors.As calls.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrUnknownArtifact     = errors.New("unknown artifact")
	ErrCyclicDependency    = errors.New("cyclic dependency")
	ErrVersionConflict     = errors.New("version conflict")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrBuildFailed         = errors.New("build failed")
	ErrDirectorySyncFailed = errors.New("directory sync failed")
)

// Error is a classified failure with enough context for the caller to decide
// whether a re-run makes sense.
type Error struct {
	Kind     error    // One of the sentinels above.
	Artifact string   // Offending artifact, empty for directory failures.
	Strategy string   // Acquisition strategy in use, if any.
	Members  []string // Cycle members, in path order.
	Message  string
	Cause    error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Artifact != "" {
		fmt.Fprintf(&b, " for '%s'", e.Artifact)
	}
	if e.Strategy != "" {
		fmt.Fprintf(&b, " (%s)", e.Strategy)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// UnknownArtifact reports a name missing from the registry. requiredBy is
// empty for top-level requests.
func UnknownArtifact(name, requiredBy string) error {
	msg := "not found in registry"
	if requiredBy != "" {
		msg = fmt.Sprintf("not found in registry (required by '%s')", requiredBy)
	}
	return &Error{Kind: ErrUnknownArtifact, Artifact: name, Message: msg}
}

// CyclicDependency reports a dependency cycle. members lists the cycle path
// with the first member repeated at the end.
func CyclicDependency(members []string) error {
	return &Error{
		Kind:    ErrCyclicDependency,
		Members: members,
		Message: strings.Join(members, " -> "),
	}
}

// VersionConflict reports two incompatible versions of one artifact.
func VersionConflict(name, have, want string) error {
	return &Error{
		Kind:     ErrVersionConflict,
		Artifact: name,
		Message:  fmt.Sprintf("resolved %s, requested %s", displayVersion(have), displayVersion(want)),
	}
}

// UnsupportedPlatform reports an artifact with no acquisition strategy.
func UnsupportedPlatform(name, reason string) error {
	return &Error{Kind: ErrUnsupportedPlatform, Artifact: name, Strategy: "unsupported", Message: reason}
}

// FetchFailed wraps a release download failure.
func FetchFailed(name string, cause error) error {
	return &Error{Kind: ErrFetchFailed, Artifact: name, Strategy: "release", Cause: cause}
}

// BuildFailed wraps a failed build procedure.
func BuildFailed(name, message string, cause error) error {
	return &Error{Kind: ErrBuildFailed, Artifact: name, Strategy: "script", Message: message, Cause: cause}
}

// DirectorySyncFailed wraps an environment directory failure.
func DirectorySyncFailed(path string, cause error) error {
	return &Error{Kind: ErrDirectorySyncFailed, Message: path, Cause: cause}
}

// ArtifactOf returns the artifact named by a classified error, if any.
func ArtifactOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Artifact
	}
	return ""
}

func displayVersion(v string) string {
	if v == "" {
		return "latest"
	}
	return v
}
