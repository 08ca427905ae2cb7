// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/parts-pauth/parts/config"
	"github.com/parts-pauth/parts/ir"
	"github.com/parts-pauth/parts/lower"
	"github.com/parts-pauth/parts/metrics"
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/typeid"
)

// Pipeline runs all passes over a module.
type Pipeline struct {
	Config config.Config
	// Events receives the diagnostics of all passes, may be nil.
	Events *metrics.Events
	// Cache is shared by all passes. A cache of Config.CacheSize entries is
	// created when it is nil.
	Cache *typeid.Cache

	once    sync.Once
	initErr error
	passes  passes

	mu                        sync.Mutex
	reportedHit, reportedMiss uint64
}

type passes struct {
	tagger     *ForwardTagger
	returns    *ReturnSigner
	rewriter   *InstructionRewriter
	intrinsics *IntrinsicLowerer
}

// FunctionResult reports what happened to one function.
type FunctionResult struct {
	Name string
	// MIR is the instrumented machine function, nil when Skipped.
	MIR *mir.Function
	// Skipped is set when instruction selection does not support the function.
	Skipped bool

	Tagged            bool
	ReturnsSigned     bool
	Rewritten         bool
	IntrinsicsLowered bool
}

// Changed reports whether any pass modified the function.
func (fr FunctionResult) Changed() bool {
	return fr.Tagged || fr.ReturnsSigned || fr.Rewritten || fr.IntrinsicsLowered
}

// Result is the outcome of a pipeline run.
type Result struct {
	GlobalsFixed bool
	// Functions are in module order.
	Functions []FunctionResult
}

func (p *Pipeline) init() error {
	p.once.Do(func() {
		if err := p.Config.Validate(); err != nil {
			p.initErr = err
			return
		}
		if p.Cache == nil {
			p.Cache, p.initErr = typeid.NewCache(uint32(p.Config.CacheSize))
			if p.initErr != nil {
				return
			}
		}
		p.passes = passes{
			tagger:     NewForwardTagger(p.Config, p.Cache, p.Events),
			returns:    NewReturnSigner(p.Config, p.Events),
			rewriter:   NewInstructionRewriter(p.Config, NewBackwardInferer(p.Cache), p.Events),
			intrinsics: NewIntrinsicLowerer(p.Config, p.Events),
		}
	})
	return p.initErr
}

// Run instruments m: globals first, then every function definition is
// tagged, lowered and rewritten. Functions are processed concurrently; the
// first defect cancels the remaining work.
func (p *Pipeline) Run(ctx context.Context, m *ir.Module) (*Result, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	defer p.reportCache()

	fixed, err := NewGlobalFixup(p.Config, p.Cache, p.Events).Run(m)
	if err != nil {
		return nil, fmt.Errorf("fixing globals: %w", err)
	}

	var defs []*ir.Function
	for _, f := range m.Functions {
		if !f.IsDeclaration() {
			defs = append(defs, f)
		}
	}
	res := &Result{GlobalsFixed: fixed, Functions: make([]FunctionResult, len(defs))}
	err = p.fanOut(ctx, len(defs), func(i int) error {
		var err error
		res.Functions[i], err = p.function(m, defs[i])
		return err
	})
	return res, err
}

// RunMIR applies the machine passes to functions that are already lowered.
func (p *Pipeline) RunMIR(ctx context.Context, fns []*mir.Function) (*Result, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	defer p.reportCache()

	res := &Result{Functions: make([]FunctionResult, len(fns))}
	err := p.fanOut(ctx, len(fns), func(i int) error {
		fr := FunctionResult{Name: fns[i].Name, MIR: fns[i]}
		err := p.machine(&fr)
		res.Functions[i] = fr
		return err
	})
	return res, err
}

func (p *Pipeline) fanOut(ctx context.Context, n int, work func(i int) error) error {
	jobs := p.Config.Jobs
	if jobs == 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := work(i)
			if errors.Is(err, ErrDefect) {
				metrics.Add(metrics.IDDefects, 1)
			}
			return err
		})
	}
	return g.Wait()
}

func (p *Pipeline) function(m *ir.Module, f *ir.Function) (FunctionResult, error) {
	fr := FunctionResult{Name: f.Name()}
	fr.Tagged = p.passes.tagger.Run(f)

	mf, err := lower.Function(m, f, lower.Options{DropMetadataOn: p.Config.DropMetadataOn})
	if errors.Is(err, lower.ErrUnsupported) {
		log.Warnf("Skipping %s: %v", f.Name(), err)
		metrics.Add(metrics.IDFunctionsSkipped, 1)
		fr.Skipped = true
		return fr, nil
	}
	if err != nil {
		return fr, err
	}
	fr.MIR = mf
	return fr, p.machine(&fr)
}

func (p *Pipeline) machine(fr *FunctionResult) error {
	var err error
	fr.ReturnsSigned = p.passes.returns.Run(fr.MIR)
	if fr.Rewritten, err = p.passes.rewriter.Run(fr.MIR); err != nil {
		return err
	}
	if fr.IntrinsicsLowered, err = p.passes.intrinsics.Run(fr.MIR); err != nil {
		return err
	}
	metrics.Add(metrics.IDFunctionsProcessed, 1)
	return nil
}

// reportCache forwards the cache statistics gathered since the last report.
func (p *Pipeline) reportCache() {
	hit, miss := p.Cache.Statistics()
	p.mu.Lock()
	defer p.mu.Unlock()
	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDTypeIDCacheHit, Value: metrics.MetricValue(hit - p.reportedHit)},
		{ID: metrics.IDTypeIDCacheMiss, Value: metrics.MetricValue(miss - p.reportedMiss)},
	})
	p.reportedHit, p.reportedMiss = hit, miss
}
