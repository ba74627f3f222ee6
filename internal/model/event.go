package model

import "time"

type SyncOp string

const (
	OpMkdir  SyncOp = "MKDIR"
	OpCopy   SyncOp = "COPY"
	OpUnlink SyncOp = "UNLINK"
	OpRmdir  SyncOp = "RMDIR"
)

// SyncResult is the outcome of one operation against one destination.
type SyncResult struct {
	Op        SyncOp
	SrcPath   string
	DstPath   string
	Err       error
	Timestamp time.Time
}
