package ledger

import (
	"context"
	"sync/atomic"
)

// FailingLog is a test helper wrapping a Log whose appends can be made to fail,
// simulating a storage fault after balances have already moved.
type FailingLog struct {
	Log
	err     atomic.Pointer[error]
	appends atomic.Int32
}

// NewFailingLog wraps l. Appends pass through until FailAppends is called.
func NewFailingLog(l Log) *FailingLog {
	return &FailingLog{Log: l}
}

// FailAppends makes every subsequent Append return err; nil restores pass-through.
func (f *FailingLog) FailAppends(err error) {
	if err == nil {
		f.err.Store(nil)
		return
	}
	f.err.Store(&err)
}

// Appends counts append attempts, including failed ones.
func (f *FailingLog) Appends() int {
	return int(f.appends.Load())
}

func (f *FailingLog) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	f.appends.Add(1)
	if errp := f.err.Load(); errp != nil {
		return Transaction{}, *errp
	}
	return f.Log.Append(ctx, tx)
}
