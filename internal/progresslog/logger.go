// Copyright (c) 2015-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/decred/versionbits/internal/blockindex"
	"github.com/decred/versionbits/versionbits"
)

// pickNoun returns the singular or plural form of a noun depending on the
// provided count.
func pickNoun(n uint64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Logger provides periodic logging of progress towards some action such as
// evaluating the deployments of a chain.
type Logger struct {
	sync.Mutex
	subsystemLogger slog.Logger
	progressAction  string

	// lastLogTime tracks the last time a log statement was shown.
	lastLogTime time.Time

	// These fields accumulate information about blocks between log statements.
	receivedBlocks    uint64
	receivedSignaling uint64
}

// New returns a new block progress logger.
func New(progressAction string, logger slog.Logger) *Logger {
	return &Logger{
		lastLogTime:     time.Now(),
		progressAction:  progressAction,
		subsystemLogger: logger,
	}
}

// LogProgress accumulates details for the provided block and periodically
// (every 10 seconds) logs an information message to show progress to the user
// along with duration and totals included.
//
// The force flag may be used to force a log message to be shown regardless of
// the time the last one was shown.
//
// The progress message is templated as follows:
//
//	{progressAction} {numProcessed} {blocks|block} in the last {timePeriod}
//	({numSignaling} signaling, height {lastBlockHeight}, {lastBlockTimeStamp},
//	{progress}%)
func (l *Logger) LogProgress(node *blockindex.BlockNode, forceLog bool, progressFn func() float64) {
	l.Lock()
	defer l.Unlock()

	l.receivedBlocks++
	version := uint32(node.Version())
	if version&versionbits.VersionBitsTopMask == versionbits.VersionBitsTopBits &&
		version&^versionbits.VersionBitsTopMask != 0 {

		l.receivedSignaling++
	}
	now := time.Now()
	duration := now.Sub(l.lastLogTime)
	if !forceLog && duration < time.Second*10 {
		return
	}

	// Log information about progress.
	l.subsystemLogger.Infof("%s %d %s in the last %0.2fs (%d signaling, "+
		"height %d, %s, %0.2f%%)", l.progressAction,
		l.receivedBlocks, pickNoun(l.receivedBlocks, "block", "blocks"),
		duration.Seconds(), l.receivedSignaling, node.Height(),
		time.Unix(node.Timestamp(), 0), progressFn())

	l.receivedBlocks = 0
	l.receivedSignaling = 0
	l.lastLogTime = now
}

// SetLastLogTime updates the last time data was logged to the provided time.
func (l *Logger) SetLastLogTime(time time.Time) {
	l.Lock()
	l.lastLogTime = time
	l.Unlock()
}
