package hwcodec

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/internal"
	"github.com/xaionaro-go/hwcodec/reformatter"
	"github.com/xaionaro-go/hwcodec/reformatter/annexb"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

// State is the lifecycle state of a Pipeline.
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateRunning
	StateFlushed
	StateStopped
	StateClosed
	EndOfState
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateFlushed:
		return "flushed"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown_%d", int(s))
}

type pipelineInternals struct {
	Descriptor Descriptor
	Config     Config

	compRef     *componentRef
	reformatter reformatter.Reformatter

	// formatState is read through xatomic also by code paths outside the
	// locker (String, FormatState); writes happen under the locker only.
	formatState *FormatState

	pendingConfigPayload typing.Optional[[]byte]
	eosSent              bool
	sawOutputEOS         bool
	state                State
	closer               *astikit.Closer
}

// Pipeline is the generic buffer submission/retrieval pipeline over one
// hardware component instance. Decode and encode differ only by the
// Descriptor and by who interprets the flags.
//
// Submission and retrieval are serialized through one locker; Buffer release
// is the only path that may run concurrently with them.
type Pipeline struct {
	*pipelineInternals
	locker xsync.Mutex
}

// New creates and configures a pipeline over a component built by the given
// factory. The pipeline is left in the Configured state; call Start before
// submitting.
func New(
	ctx context.Context,
	desc Descriptor,
	cfg Config,
	factory component.Factory,
) (_ret *Pipeline, _err error) {
	ctx = belt.WithField(ctx, "descriptor", desc.String())
	logger.Debugf(ctx, "New(ctx, %s, %dx%d)", desc, cfg.Width, cfg.Height)
	defer func() { logger.Debugf(ctx, "/New(ctx, %s, %dx%d): %v", desc, cfg.Width, cfg.Height, _err) }()

	if err := desc.validate(); err != nil {
		return nil, ErrConfiguration{Err: err}
	}
	cfg.setDefaults(ctx, desc)
	if err := cfg.validate(desc); err != nil {
		return nil, ErrConfiguration{Err: err}
	}

	if err := component.EnsureRuntime(ctx); err != nil {
		return nil, componentErr("runtime_init", err)
	}

	platformSpecificSanityChecks(ctx, desc)

	r := cfg.Reformatter
	if r == nil {
		var err error
		r, err = autoReformatter(ctx, desc, cfg)
		if err != nil {
			return nil, ErrConfiguration{Err: err}
		}
	}

	compCfg, err := cfg.componentConfig(desc)
	if err != nil {
		return nil, ErrConfiguration{Err: err}
	}
	comp, err := factory.NewComponent(ctx, compCfg)
	if err != nil {
		return nil, componentErr("create", err)
	}

	p := &Pipeline{
		pipelineInternals: &pipelineInternals{
			Descriptor:  desc,
			Config:      cfg,
			compRef:     newComponentRef(comp),
			reformatter: r,
			state:       StateConfigured,
			closer:      astikit.NewCloser(),
		},
	}
	p.closer.Add(func() {
		logger.Tracef(ctx, "pipeline closed: %s", desc)
	})

	internal.SetFinalizer(ctx, p.pipelineInternals, func(in *pipelineInternals) {
		_ = in.closeLocked(ctx)
	})
	return p, nil
}

// autoReformatter installs the AVCC->AnnexB reformatter when the
// configuration record says the input is length-prefixed (the first byte of
// an AVC decoder configuration record is the version, 1).
func autoReformatter(
	ctx context.Context,
	desc Descriptor,
	cfg Config,
) (reformatter.Reformatter, error) {
	if desc.Kind != KindDecoder || len(cfg.ExtraData) == 0 || cfg.ExtraData[0] != 1 {
		return nil, nil
	}
	switch desc.MIMEType {
	case "video/avc":
		return annexb.NewH264(ctx, cfg.ExtraData)
	case "video/hevc":
		return nil, fmt.Errorf("length-prefixed HEVC input requires an explicit Reformatter")
	}
	return nil, nil
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(%s)", p.Descriptor)
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &p.locker, func() State {
		return p.state
	})
}

// FormatState reports the cached output geometry; ok is false before the
// first format-change notification.
func (p *Pipeline) FormatState() (_ FormatState, ok bool) {
	fs := xatomic.LoadPointer(&p.formatState)
	if fs == nil {
		return FormatState{}, false
	}
	return *fs, true
}

// Start transitions Configured -> Running: the component is started and the
// slot pools become usable.
func (p *Pipeline) Start(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &p.locker, p.pipelineInternals.start, ctx)
}

func (p *pipelineInternals) start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "start")
	defer func() { logger.Debugf(ctx, "/start: %v", _err) }()
	if p.state != StateConfigured {
		return ErrInvalidState{State: p.state, Op: "start"}
	}
	if err := p.compRef.comp.Start(ctx); err != nil {
		return componentErr("start", err)
	}
	p.state = StateRunning
	return nil
}

// Flush invalidates all in-flight slots and clears the pending
// config-payload and end-of-stream state. The cached FormatState is
// preserved: a flush is not a reconfiguration.
func (p *Pipeline) Flush(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &p.locker, p.pipelineInternals.flush, ctx)
}

func (p *pipelineInternals) flush(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "flush")
	defer func() { logger.Debugf(ctx, "/flush: %v", _err) }()
	switch p.state {
	case StateRunning, StateFlushed:
	default:
		return ErrInvalidState{State: p.state, Op: "flush"}
	}
	if err := p.compRef.comp.Flush(ctx); err != nil {
		return componentErr("flush", err)
	}
	p.pendingConfigPayload = typing.Optional[[]byte]{}
	p.eosSent = false
	p.sawOutputEOS = false
	p.state = StateFlushed
	return nil
}

// Stop halts the component. In-flight slots become invalid.
func (p *Pipeline) Stop(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &p.locker, p.pipelineInternals.stop, ctx)
}

func (p *pipelineInternals) stop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "stop")
	defer func() { logger.Debugf(ctx, "/stop: %v", _err) }()
	switch p.state {
	case StateRunning, StateFlushed:
	default:
		return ErrInvalidState{State: p.state, Op: "stop"}
	}
	if err := p.compRef.comp.Stop(ctx); err != nil {
		return componentErr("stop", err)
	}
	p.state = StateStopped
	return nil
}

// Close tears the pipeline down. The component itself is destroyed once the
// last outstanding Buffer is released; until then, buffer releases degrade
// into safe no-ops.
func (p *Pipeline) Close(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &p.locker, p.pipelineInternals.closeLocked, ctx)
}

func (p *pipelineInternals) closeLocked(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "closeLocked")
	defer func() { logger.Debugf(ctx, "/closeLocked: %v", _err) }()
	if p.state == StateClosed {
		return nil
	}
	ctx = xcontext.DetachDone(ctx)

	switch p.state {
	case StateRunning, StateFlushed:
		if err := p.compRef.comp.Flush(ctx); err != nil {
			logger.Errorf(ctx, "unable to flush the component: %v", err)
		}
		if err := p.compRef.comp.Stop(ctx); err != nil {
			logger.Errorf(ctx, "unable to stop the component: %v", err)
		}
	}

	p.state = StateClosed
	p.compRef.closing.Store(true)
	belt.Flush(ctx)
	p.compRef.unref(ctx)
	return p.closer.Close()
}
