package entity

// TraceField is one key=value pair of the scheduler trace.
type TraceField struct {
	Key   string
	Value string
}

// TraceRecord is the trace of one run, fields in the order they were set.
type TraceRecord struct {
	Task      string
	Execution string
	RunID     string
	Fields    []TraceField
}
