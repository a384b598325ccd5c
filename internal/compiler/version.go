package compiler

import (
	"os/exec"
	"runtime"
	"strings"
)

// Version is the module version reported by the version command.
const Version = "1.1.0"

// PlatformInfo describes the host platform.
type PlatformInfo struct {
	OSName       string
	Architecture string
	IsWindows    bool
	IsLinux      bool
	IsMacOS      bool
}

// VersionInfo aggregates version details for the module and the external
// toolchain it drives.
type VersionInfo struct {
	ModuleVersion string
	GoVersion     string

	// NodeVersion is empty when node is not installed.
	NodeVersion string

	// HostlistCompilerVersion and HostlistCompilerPath are empty when the
	// external compiler is not directly installed.
	HostlistCompilerVersion string
	HostlistCompilerPath    string

	Platform PlatformInfo
}

// GetPlatformInfo reports the current platform.
func GetPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OSName:       runtime.GOOS,
		Architecture: runtime.GOARCH,
		IsWindows:    runtime.GOOS == "windows",
		IsLinux:      runtime.GOOS == "linux",
		IsMacOS:      runtime.GOOS == "darwin",
	}
}

// GetVersionInfo probes the environment for toolchain versions.
// Missing tools leave their fields empty rather than erroring.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		ModuleVersion: Version,
		GoVersion:     runtime.Version(),
		Platform:      GetPlatformInfo(),
	}

	info.NodeVersion = commandVersion("node", "--version")

	if path, err := exec.LookPath("hostlist-compiler"); err == nil {
		info.HostlistCompilerPath = path
		info.HostlistCompilerVersion = commandVersion("hostlist-compiler", "--version")
	}

	return info
}

// commandVersion runs a command with a version flag and returns the first
// line of its output, or empty on any failure.
func commandVersion(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line
}
