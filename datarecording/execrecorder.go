package datarecording

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ExecInfo is one property of a recorded run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecInfoTable holds the properties of the run that wrote the database.
const ExecInfoTable = "exec_info"

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// ExecRecorder records when and how the program ran.
type ExecRecorder struct {
	recorder DataRecorder
	session  string
	entries  []ExecInfo
}

// NewExecRecorder creates the run table.
func NewExecRecorder(r DataRecorder, session string) (*ExecRecorder, error) {
	if err := r.CreateTable(ExecInfoTable, ExecInfo{}); err != nil {
		return nil, err
	}

	return &ExecRecorder{recorder: r, session: session}, nil
}

// Start notes the start time, the command line and the working directory.
func (e *ExecRecorder) Start() {
	e.entries = append(e.entries,
		ExecInfo{"Session", e.session},
		ExecInfo{"Start Time", time.Now().Format(execTimeFormat)},
		ExecInfo{"Command", strings.Join(os.Args, " ")},
	)

	if wd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, ExecInfo{"Working Directory", wd})
	}
}

// Set adds a free-form property, such as the configuration in use.
func (e *ExecRecorder) Set(property string, value any) {
	e.entries = append(e.entries, ExecInfo{property, fmt.Sprint(value)})
}

// End writes the collected properties along with the end time.
func (e *ExecRecorder) End() error {
	e.entries = append(e.entries,
		ExecInfo{"End Time", time.Now().Format(execTimeFormat)})

	for _, entry := range e.entries {
		if err := e.recorder.InsertData(ExecInfoTable, entry); err != nil {
			return err
		}
	}

	e.entries = nil

	return e.recorder.Flush()
}
