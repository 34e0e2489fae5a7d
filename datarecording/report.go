package datarecording

import (
	"context"
	"sort"
)

// StageReport summarises what a recording holds about one stage.
type StageReport struct {
	Stage      string
	Entries    int
	Executions uint64
	AverageMs  float64
	MaxMs      float64
	Removals   int
}

// Report reads the execution and removal tables and summarises them per
// stage, sorted by stage name.
func Report(ctx context.Context, r DataReader) ([]StageReport, error) {
	r.MapTable(ExecutionTable, ExecutionRow{})
	r.MapTable(RemovalTable, RemovalRow{})

	executions, _, err := r.Query(ctx, ExecutionTable, QueryParams{})
	if err != nil {
		return nil, err
	}

	removals, _, err := r.Query(ctx, RemovalTable, QueryParams{})
	if err != nil {
		return nil, err
	}

	reports := make(map[string]*StageReport)
	entries := make(map[string]map[int]bool)

	get := func(stage string) *StageReport {
		rep, ok := reports[stage]
		if !ok {
			rep = &StageReport{Stage: stage}
			reports[stage] = rep
			entries[stage] = make(map[int]bool)
		}

		return rep
	}

	for _, row := range executions {
		e := row.(*ExecutionRow)
		rep := get(e.Stage)

		rep.AverageMs = (rep.AverageMs*float64(rep.Executions) + e.ExecutionMs) /
			float64(rep.Executions+1)
		rep.Executions++

		if e.ExecutionMs > rep.MaxMs {
			rep.MaxMs = e.ExecutionMs
		}

		entries[e.Stage][e.EntryID] = true
	}

	for _, row := range removals {
		e := row.(*RemovalRow)
		rep := get(e.Stage)
		rep.Removals++
		entries[e.Stage][e.EntryID] = true
	}

	result := make([]StageReport, 0, len(reports))
	for stage, rep := range reports {
		rep.Entries = len(entries[stage])
		result = append(result, *rep)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Stage < result[j].Stage
	})

	return result, nil
}
