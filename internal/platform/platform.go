// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package platform describes the operating system and architecture an
// artifact is resolved for. Constructors receive a Platform value instead of
// branching at compile time, so every platform can be exercised on any host.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform identifies an operating system and CPU architecture pair using
// Go's GOOS/GOARCH vocabulary.
type Platform struct {
	OS   string
	Arch string
}

var (
	LinuxAMD64   = Platform{OS: "linux", Arch: "amd64"}
	LinuxARM64   = Platform{OS: "linux", Arch: "arm64"}
	DarwinAMD64  = Platform{OS: "darwin", Arch: "amd64"}
	DarwinARM64  = Platform{OS: "darwin", Arch: "arm64"}
	WindowsAMD64 = Platform{OS: "windows", Arch: "amd64"}
)

// Supported returns the fixed set of platforms every constructor must map to
// exactly one strategy.
func Supported() []Platform {
	return []Platform{LinuxAMD64, LinuxARM64, DarwinAMD64, DarwinARM64, WindowsAMD64}
}

// Detect returns the platform of the running binary.
func Detect() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Parse reads an "os/arch" pair, e.g. "linux/arm64".
func Parse(s string) (Platform, error) {
	osName, arch, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || osName == "" || arch == "" {
		return Platform{}, fmt.Errorf("invalid platform '%s': expected os/arch", s)
	}
	return Platform{OS: strings.ToLower(osName), Arch: strings.ToLower(arch)}, nil
}

// String returns the "os/arch" form accepted by Parse.
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Qualifier is the platform part of a release asset name.
func (p Platform) Qualifier() string {
	return p.OS + "-" + p.Arch
}

// IsSupported reports whether p is part of the supported set.
func (p Platform) IsSupported() bool {
	for _, s := range Supported() {
		if s == p {
			return true
		}
	}
	return false
}
