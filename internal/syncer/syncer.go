// Package syncer implements the replication engine: the initial tree copy,
// the notification driven monitor that keeps destinations in step with a
// source, and the two-pass restore of a backup onto a live directory.
package syncer

import (
	"mirrorsync/internal/metrics"
	"mirrorsync/internal/model"
	"time"
)

// Reporter receives the outcome of every destination operation. It is
// called synchronously from the engine's goroutine.
type Reporter func(model.SyncResult)

func (r Reporter) report(op model.SyncOp, src, dst string, err error) {
	metrics.RecordOp(string(op), err)

	if r == nil {
		return
	}

	r(model.SyncResult{
		Op:        op,
		SrcPath:   src,
		DstPath:   dst,
		Err:       err,
		Timestamp: time.Now(),
	})
}
