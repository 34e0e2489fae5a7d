package datarecording

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/hooking"
	"github.com/sarchlab/bindengine/updater"
)

// Tables written by ExecutionRecorder.
const (
	ExecutionTable = "binding_executions"
	RemovalTable   = "binding_removals"
)

// ExecutionRow is one profiled execution of an entry.
type ExecutionRow struct {
	Session     string
	Frame       uint64
	Stage       string
	EntryID     int
	Context     string
	ExecutionMs float64
	TotalCount  uint64
}

// RemovalRow is an entry leaving its updater.
type RemovalRow struct {
	Session    string
	Frame      uint64
	Stage      string
	EntryID    int
	Context    string
	Executions uint64
}

// ExecutionRecorder is a hook that stores the executions and removals
// published by updaters.
type ExecutionRecorder struct {
	recorder DataRecorder
	clock    updater.TimeTeller
	session  string
	logger   *zap.Logger
}

// NewExecutionRecorder creates the tables and returns a recorder to attach
// to updaters.
func NewExecutionRecorder(
	r DataRecorder,
	clock updater.TimeTeller,
	session string,
) (*ExecutionRecorder, error) {
	if err := r.CreateTable(ExecutionTable, ExecutionRow{}); err != nil {
		return nil, err
	}

	if err := r.CreateTable(RemovalTable, RemovalRow{}); err != nil {
		return nil, err
	}

	return &ExecutionRecorder{
		recorder: r,
		clock:    clock,
		session:  session,
		logger:   zap.NewNop(),
	}, nil
}

// WithLogger sets the logger used to report write failures.
func (r *ExecutionRecorder) WithLogger(l *zap.Logger) *ExecutionRecorder {
	r.logger = l
	return r
}

// Func stores samples and removals.
func (r *ExecutionRecorder) Func(ctx hooking.HookCtx) {
	var err error

	switch ctx.Pos {
	case updater.HookPosEntryExecuted:
		s := ctx.Item.(updater.ExecutionSample)
		err = r.recorder.InsertData(ExecutionTable, ExecutionRow{
			Session:     r.session,
			Frame:       s.Frame,
			Stage:       s.Stage,
			EntryID:     s.EntryID,
			Context:     describe(s.Context),
			ExecutionMs: float64(s.ExecutionTime.Nanoseconds()) / 1e6,
			TotalCount:  s.TotalCount,
		})
	case updater.HookPosEntryRemoved:
		d := ctx.Item.(*updater.StageData)
		err = r.recorder.InsertData(RemovalTable, RemovalRow{
			Session:    r.session,
			Frame:      r.clock.FrameCount(),
			Stage:      d.StageName,
			EntryID:    d.ID,
			Context:    describe(d.Context),
			Executions: d.TotalExecutionsCount,
		})
	default:
		return
	}

	if err != nil {
		r.logger.Warn("cannot record binding telemetry",
			zap.String("pos", ctx.Pos.Name),
			zap.Error(err))
	}
}

func describe(ctx any) string {
	switch c := ctx.(type) {
	case nil:
		return ""
	case fmt.Stringer:
		return c.String()
	default:
		return fmt.Sprintf("%T", ctx)
	}
}
