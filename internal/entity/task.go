package entity

// Task is the unit of work of one daemon invocation.
type Task struct {
	ID        string // Task hash, also the name of the sync log file
	Execution string
	DNS       string // Base URL of the fabric resolver service
	SyncDir   string
	Speed     int // Download speed cap in percent of line rate, 1..100
	Nodes     []*NodeJob
	Symlinks  []SymlinkSpec
	// WaitFor maps a peer task id to the files this task must see in its sync log.
	WaitFor map[string][]string
}

// NodeJob is the ordered download queue for one peer node.
type NodeJob struct {
	Node    string
	KnownIP string // Empty means the IP is resolved through the resolver
	Files   []string
}

type SymlinkSpec struct {
	Link   string
	Target string
}
