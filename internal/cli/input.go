package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"awacsweep/internal/config"
	"awacsweep/internal/sweep"
)

const (
	ExitSuccess           = 0
	ExitSweepFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
	ExitInterrupted       = 130
)

// CLIInvocation is the canonical description of one awacsweep command.
//
// WorkDir is absolute; every other path is either absolute or resolved
// under WorkDir, so nothing downstream depends on the process CWD.
type CLIInvocation struct {
	WorkDir    string
	Preset     string
	ConfigPath string
	Overrides  config.Overrides

	LogDir      string
	TracePath   string
	MetricsPath string

	// Resume picks the latest unsuccessful run of the same sweep; ResumeFrom
	// names the run explicitly.
	Resume     bool
	ResumeFrom string
}

// InvocationError carries the exit code the process should end with.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// Settings assembles preset, config file and overrides, in that order.
func (inv CLIInvocation) Settings() (config.Settings, error) {
	s := config.Defaults()
	if inv.Preset != "" {
		p, err := config.Preset(inv.Preset)
		if err != nil {
			return config.Settings{}, err
		}
		s = p
	}
	if inv.ConfigPath != "" {
		if err := config.LoadFile(inv.ConfigPath, &s); err != nil {
			return config.Settings{}, err
		}
	}
	inv.Overrides.Apply(&s)
	return s, nil
}

// Resolve returns the validated sweep described by the invocation.
func (inv CLIInvocation) Resolve() (*config.Resolved, error) {
	s, err := inv.Settings()
	if err != nil {
		return nil, err
	}
	return s.Resolve()
}

func (inv CLIInvocation) resumeRequested() bool {
	return inv.Resume || inv.ResumeFrom != ""
}

// canonicalize resolves paths under WorkDir. cwd is used only when WorkDir
// itself is relative or empty.
func (inv *CLIInvocation) canonicalize(cwd string) error {
	wd := strings.TrimSpace(inv.WorkDir)
	if wd == "" {
		wd = cwd
	}
	if !filepath.IsAbs(wd) {
		wd = filepath.Join(cwd, wd)
	}
	inv.WorkDir = filepath.Clean(wd)
	if !filepath.IsAbs(inv.WorkDir) {
		return invalidInvocationf("--workdir must resolve to an absolute path (got %q)", inv.WorkDir)
	}
	if inv.Resume && inv.ResumeFrom != "" {
		return invalidInvocationf("--resume and --resume-from are mutually exclusive")
	}

	for _, p := range []*string{&inv.ConfigPath, &inv.LogDir, &inv.TracePath, &inv.MetricsPath} {
		if strings.TrimSpace(*p) == "" {
			*p = ""
			continue
		}
		resolved, err := resolveUnderWorkDir(inv.WorkDir, *p)
		if err != nil {
			return err
		}
		*p = resolved
	}
	return nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode maps an error returned by the CLI to a semantic exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	if errors.Is(err, sweep.ErrCancelled) {
		return ExitInterrupted
	}
	return ExitInternalError
}
