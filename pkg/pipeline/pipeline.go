// Package pipeline runs one evidence-pack generation end to end.
//
// The stages run strictly in order, each consuming the previous stage's
// output:
//
//  1. Extract: walk the repository for stack signals
//  2. Classify: resolve signals into a stack profile
//  3. Facts: collect repository identity from git and configuration
//  4. Analyze: run the analyzers through the orchestrator
//  5. Aggregate: merge results into the evidence model
//  6. Assemble: write and checksum the pack
//  7. Upload: publish the pack when a target is configured
//
// Analyzer failures never stop the pipeline. Input errors stop it before the
// first stage; assembly and upload errors are fatal.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Manifest.Dir)
package pipeline

import (
	"time"

	"github.com/matzehuels/evidencepack/pkg/evidence"
	"github.com/matzehuels/evidencepack/pkg/pack"
	"github.com/matzehuels/evidencepack/pkg/stack"
	"github.com/matzehuels/evidencepack/pkg/upload"
)

// Stage names, as reported to observability hooks.
const (
	StageExtract   = "extract"
	StageClassify  = "classify"
	StageFacts     = "facts"
	StageAnalyze   = "analyze"
	StageAggregate = "aggregate"
	StageAssemble  = "assemble"
	StageUpload    = "upload"
)

// Stages lists the stages in execution order.
var Stages = []string{
	StageExtract, StageClassify, StageFacts, StageAnalyze,
	StageAggregate, StageAssemble, StageUpload,
}

// Result contains the outputs of a pipeline run.
type Result struct {
	Profile  stack.Profile
	Model    evidence.Model
	Manifest *pack.Manifest

	// Upload is nil when no upload target is configured.
	Upload *upload.Result

	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Signals   int
	Durations map[string]time.Duration
}
