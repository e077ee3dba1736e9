// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/jrick/bitset"
)

const (
	// unknownSignalWindow is the number of previous blocks to consider when
	// checking for a threshold of blocks that signal with unknown bits.
	unknownSignalWindow = 100

	// unknownSignalWarnNum is the threshold of blocks in the window that
	// signal with unknown bits which causes a warning to be logged.
	unknownSignalWarnNum = unknownSignalWindow / 2
)

// DeploymentStatus is the coarse status of a deployment as known by the
// registry.
type DeploymentStatus byte

// These constants define the possible deployment statuses.
const (
	// StatusUnknown indicates no deployment with the name is registered.
	StatusUnknown DeploymentStatus = iota

	// StatusInProgress indicates the deployment is registered.  It does not
	// distinguish between the states the deployment may be in.
	StatusInProgress
)

// String returns the DeploymentStatus as a human-readable name.
func (s DeploymentStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusInProgress:
		return "in progress"
	}
	return fmt.Sprintf("Unknown DeploymentStatus (%d)", int(s))
}

// Config houses the optional configuration of a registry.
type Config struct {
	// NewTracker creates the tracker used to evaluate a newly registered
	// deployment.  NewCachedTracker is used when it is nil.
	NewTracker func(d Deployment) StateTracker
}

// Registry owns the set of known deployments and answers activation queries
// for them as of the most recently seen chain tip.
//
// The registry performs no locking.  AddDeployment, Update and Restore MUST be
// serialized with respect to every other method.
type Registry struct {
	newTracker func(d Deployment) StateTracker

	// trackers houses the tracker of every registered deployment in the order
	// they were added while byName provides lookups by deployment name.
	trackers []StateTracker
	byName   map[string]StateTracker

	// bitsInUse tracks which signaling bits are claimed by registered
	// deployments.
	bitsInUse bitset.Bytes

	// tip is the most recently seen chain tip.
	tip BlockNode

	// lastStates tracks the most recently logged state of each deployment so
	// changes are only logged once.
	lastStates map[string]ThresholdState

	// warnedUnknownSignals tracks whether a warning about blocks signaling
	// for unknown deployments has already been shown.
	warnedUnknownSignals bool
}

// NewRegistry returns an empty registry.  The config may be nil.
func NewRegistry(cfg *Config) *Registry {
	newTracker := func(d Deployment) StateTracker {
		return NewCachedTracker(d)
	}
	if cfg != nil && cfg.NewTracker != nil {
		newTracker = cfg.NewTracker
	}
	return &Registry{
		newTracker: newTracker,
		byName:     make(map[string]StateTracker),
		bitsInUse:  bitset.NewBytes(VersionBitsNumBits),
		lastStates: make(map[string]ThresholdState),
	}
}

// AddDeployment registers the provided deployment along with a new tracker for
// it.
//
// An error with the kind ErrInvalidBit is returned when the signaling bit is
// out of range, ErrDuplicateDeployment when the name is already registered and
// ErrBitInUse when another registered deployment already signals with the same
// bit.  The deployment is not registered in any of those cases.
//
// Deployments that are not viable are registered since they are permanently
// failed, which is still a meaningful answer to queries.
//
// This function MUST be called with the chain state lock held (for writes).
func (r *Registry) AddDeployment(d Deployment) error {
	if d.Bit >= VersionBitsNumBits {
		str := fmt.Sprintf("deployment %q signals with bit %d which is not "+
			"less than %d", d.Name, d.Bit, VersionBitsNumBits)
		return contextError(ErrInvalidBit, str)
	}
	if _, ok := r.byName[d.Name]; ok {
		str := fmt.Sprintf("deployment %q is already registered", d.Name)
		return contextError(ErrDuplicateDeployment, str)
	}
	if r.bitsInUse.Get(int(d.Bit)) {
		var owner string
		for _, tracker := range r.trackers {
			if other := tracker.Deployment(); other.Bit == d.Bit {
				owner = other.Name
				break
			}
		}
		str := fmt.Sprintf("deployment %q signals with bit %d which is "+
			"already used by deployment %q", d.Name, d.Bit, owner)
		return contextError(ErrBitInUse, str)
	}
	if err := d.CheckViable(); err != nil {
		log.Warnf("Registering permanently failed deployment: %v", err)
	}

	tracker := r.newTracker(d)
	r.trackers = append(r.trackers, tracker)
	r.byName[d.Name] = tracker
	r.bitsInUse.Set(int(d.Bit))
	log.Debugf("Registered deployment %v", d)
	return nil
}

// Deployments returns all registered deployments in the order they were added.
func (r *Registry) Deployments() []Deployment {
	deployments := make([]Deployment, 0, len(r.trackers))
	for _, tracker := range r.trackers {
		deployments = append(deployments, tracker.Deployment())
	}
	return deployments
}

// Tip returns the most recently seen chain tip.
func (r *Registry) Tip() BlockNode {
	return r.tip
}

// Update records the provided block as the current chain tip and forwards it to
// the tracker of every registered deployment.
//
// This function MUST be called with the chain state lock held (for writes).
func (r *Registry) Update(tip BlockNode) {
	r.tip = tip
	for _, tracker := range r.trackers {
		d := tracker.Deployment()
		if !tracker.Update(tip) && d.IsViable() {
			log.Errorf("Unable to determine the state of deployment %s as "+
				"of height %d", d.Name, tipHeight(tip))
			continue
		}

		state := tracker.LastCachedStatePriorTo(tip)
		if prevState, ok := r.lastStates[d.Name]; !ok || prevState != state {
			if ok {
				log.Infof("Deployment %s changed from %v to %v as of "+
					"height %d", d.Name, prevState, state, tipHeight(tip))
			}
			r.lastStates[d.Name] = state
		}
	}

	r.warnUnknownSignals(tip)
}

// tipHeight returns the height of the provided tip or -1 when it is nil.
func tipHeight(tip BlockNode) int64 {
	if tip == nil {
		return -1
	}
	return tip.Height()
}

// warnUnknownSignals logs a warning when enough recent blocks signal with bits
// that no registered deployment uses, since that means the network is likely
// voting on rules this software does not know about.  The warning is only shown
// once.
func (r *Registry) warnUnknownSignals(tip BlockNode) {
	if r.warnedUnknownSignals {
		return
	}

	var knownMask uint32
	for _, tracker := range r.trackers {
		d := tracker.Deployment()
		knownMask |= d.Mask()
	}

	var numUnknown int
	var unknownBits uint32
	node := tip
	for i := 0; i < unknownSignalWindow && node != nil; i++ {
		version := uint32(node.Version())
		if version&VersionBitsTopMask == VersionBitsTopBits {
			if bits := version &^ VersionBitsTopMask &^ knownMask; bits != 0 {
				numUnknown++
				unknownBits |= bits
			}
		}
		node = node.Parent()
	}
	if numUnknown > unknownSignalWarnNum {
		log.Warnf("%d of the previous %d blocks signal for unknown "+
			"deployments (bits %#08x) -- new rules may be activating that "+
			"this software does not understand", numUnknown,
			unknownSignalWindow, unknownBits)
		r.warnedUnknownSignals = true
	}
}

// Status returns StatusInProgress when a deployment with the provided name is
// registered and StatusUnknown otherwise.
func (r *Registry) Status(name string) DeploymentStatus {
	if _, ok := r.byName[name]; !ok {
		return StatusUnknown
	}
	return StatusInProgress
}

// IsActive returns whether the named deployment is active for the block that
// would extend the current tip.  False is returned for unknown deployments.
func (r *Registry) IsActive(name string) bool {
	tracker, ok := r.byName[name]
	if !ok {
		return false
	}
	return tracker.LastCachedStatePriorTo(r.tip) == ThresholdActive
}

// State returns the threshold state of the named deployment for the block that
// would extend the current tip.
func (r *Registry) State(name string) (ThresholdState, error) {
	tracker, ok := r.byName[name]
	if !ok {
		return ThresholdInvalid, unknownDeploymentError(name)
	}
	return tracker.LastCachedStatePriorTo(r.tip), nil
}

// Statistics returns the signaling statistics of the period in progress as of
// the current tip for the named deployment.
func (r *Registry) Statistics(name string) (Stats, error) {
	tracker, ok := r.byName[name]
	if !ok {
		return Stats{}, unknownDeploymentError(name)
	}
	return tracker.Statistics(r.tip), nil
}

// StateSinceHeight returns the height of the first block of the period in which
// the current state of the named deployment began.
func (r *Registry) StateSinceHeight(name string) (int64, error) {
	tracker, ok := r.byName[name]
	if !ok {
		return 0, unknownDeploymentError(name)
	}
	return tracker.StateSinceHeight(r.tip), nil
}

// NextBlockVersion returns the block version a miner extending the current tip
// should use.  It signals for every deployment that is either started or
// locked in.
func (r *Registry) NextBlockVersion() int32 {
	version := uint32(VersionBitsTopBits)
	for _, tracker := range r.trackers {
		switch tracker.LastCachedStatePriorTo(r.tip) {
		case ThresholdStarted, ThresholdLockedIn:
			d := tracker.Deployment()
			version |= d.Mask()
		}
	}
	return int32(version)
}

// Snapshot returns the cached states of all registered deployments.
func (r *Registry) Snapshot() []Snapshot {
	snapshots := make([]Snapshot, 0, len(r.trackers))
	for _, tracker := range r.trackers {
		snapshots = append(snapshots, Snapshot{
			Deployment: tracker.Deployment().Name,
			States:     tracker.Snapshot(),
		})
	}
	return snapshots
}

// Restore populates the caches of the registered deployments from the provided
// snapshots.  The lookup function must return the block node for a given hash
// or nil when it is not known.
//
// Every snapshot is validated before any of them are applied, so the caches
// are left untouched when an error is returned.  An error with the kind
// ErrUnknownDeployment is returned when a snapshot refers to a deployment that
// is not registered and ErrDuplicateDeployment when more than one snapshot
// refers to the same deployment.
//
// This function MUST be called with the chain state lock held (for writes).
func (r *Registry) Restore(snapshots []Snapshot, lookup func(*chainhash.Hash) BlockNode) error {
	trackers := make([]StateTracker, 0, len(snapshots))
	seen := make(map[string]struct{}, len(snapshots))
	for i := range snapshots {
		snapshot := &snapshots[i]
		tracker, ok := r.byName[snapshot.Deployment]
		if !ok {
			return unknownDeploymentError(snapshot.Deployment)
		}
		if _, ok := seen[snapshot.Deployment]; ok {
			str := fmt.Sprintf("multiple snapshots for deployment %q",
				snapshot.Deployment)
			return contextError(ErrDuplicateDeployment, str)
		}
		seen[snapshot.Deployment] = struct{}{}
		if err := tracker.CheckRestore(snapshot.States, lookup); err != nil {
			return err
		}
		trackers = append(trackers, tracker)
	}

	for i, tracker := range trackers {
		snapshot := &snapshots[i]
		if err := tracker.Restore(snapshot.States, lookup); err != nil {
			return err
		}
		log.Debugf("Restored %d cached states for deployment %s",
			len(snapshot.States), snapshot.Deployment)
	}
	return nil
}
