// Package analysis runs independent, partially-failing analyzers against a
// classified stack.
//
// Every analyzer ends in exactly one [Result]. Failures, timeouts and panics
// become failed results; analyzers that do not apply or lack a credential
// become skipped results. Nothing an analyzer does can abort the run: only
// cancellation of the parent context does.
package analysis

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/facts"
	"github.com/matzehuels/evidencepack/pkg/stack"
)

// Analyzer produces one section of evidence.
type Analyzer interface {
	Info() Info
	// Invoke runs the analyzer. It must honor ctx cancellation; the
	// orchestrator sets Analyzer and Duration on the returned result.
	Invoke(ctx context.Context, req Request) Result
}

// Info declares when an analyzer applies and what it needs.
type Info struct {
	Name string
	// Runtimes lists the stack runtimes the analyzer serves. Ignored when
	// Generic is set.
	Runtimes []string
	Generic  bool
	// Credential names a required credential, if any.
	Credential string
	// DependsOn names an analyzer whose usable result is passed as
	// Request.Upstream. Chains deeper than one level are not supported.
	DependsOn string
	// Timeout overrides the orchestrator default when non-zero.
	Timeout time.Duration
}

// Request is the input to one analyzer invocation.
type Request struct {
	RepoPath    string
	Profile     stack.Profile
	Facts       facts.Facts
	Credentials config.Credentials
	// Upstream is the result of Info.DependsOn, set only for dependent
	// analyzers.
	Upstream *Result
	Logger   *log.Logger
}
