// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package versionbits

import (
	"fmt"
	"math"
)

const (
	// LastOldBlockVersion is the highest block version used prior to version
	// bits signaling.
	LastOldBlockVersion = 4

	// VersionBitsTopBits is the value the top bits of a block version must be
	// set to in order for the block to be considered as signaling.
	VersionBitsTopBits = 0x20000000

	// VersionBitsTopMask is the mask applied to a block version to extract the
	// top bits that determine whether version bits signaling is in use.
	VersionBitsTopMask = 0xe0000000

	// VersionBitsNumBits is the total number of bits available for
	// signaling.
	VersionBitsNumBits = 29

	// MaxSimultaneousDeployments is the maximum number of deployments that
	// may be meaningfully tracked at the same time.  It is limited by the
	// number of available signaling bits.
	MaxSimultaneousDeployments = VersionBitsNumBits

	// AlwaysActive is the special start time which indicates a deployment is
	// active for every block.  Such deployments bypass the state machine.
	AlwaysActive int64 = -1

	// NoTimeout is the timeout to use for deployments that never expire.
	NoTimeout int64 = math.MaxInt64
)

// Deployment describes a single proposed consensus change that is activated
// by miners signaling with a version bit.  It is immutable once registered.
type Deployment struct {
	// Name uniquely identifies the deployment.
	Name string

	// Bit is the bit position in the block version used to signal for the
	// deployment.  It must be less than VersionBitsNumBits.
	Bit uint8

	// StartTime is the median time past at which voting on the deployment
	// begins.  The special value AlwaysActive makes the deployment active
	// unconditionally.
	StartTime int64

	// Timeout is the median time past at which the deployment fails if it
	// has not already locked in.
	Timeout int64

	// Period is the number of blocks in each evaluation window.
	Period int64

	// Threshold is the number of blocks within a single period that must
	// signal for the deployment in order for it to lock in.
	Threshold int64
}

// IsAlwaysActive returns whether the deployment is configured to be active
// for every block regardless of the chain.
func (d *Deployment) IsAlwaysActive() bool {
	return d.StartTime == AlwaysActive
}

// IsViable returns whether the deployment parameters permit activation at all.
// Deployments that are not viable are permanently failed.
func (d *Deployment) IsViable() bool {
	return d.StartTime <= d.Timeout && d.Period > 0 && d.Period >= d.Threshold
}

// CheckViable returns an error with the kind ErrNonViableDeployment when the
// deployment can never activate.
func (d *Deployment) CheckViable() error {
	if d.IsAlwaysActive() || d.IsViable() {
		return nil
	}

	var reason string
	switch {
	case d.StartTime > d.Timeout:
		reason = fmt.Sprintf("start time %d is after timeout %d", d.StartTime,
			d.Timeout)
	case d.Period <= 0:
		reason = fmt.Sprintf("period %d is not positive", d.Period)
	default:
		reason = fmt.Sprintf("period %d is less than threshold %d", d.Period,
			d.Threshold)
	}
	str := fmt.Sprintf("deployment %q is not viable: %s", d.Name, reason)
	return contextError(ErrNonViableDeployment, str)
}

// Mask returns the version bits mask of the deployment's signaling bit.
func (d *Deployment) Mask() uint32 {
	return uint32(1) << d.Bit
}

// String returns a human-readable summary of the deployment.
func (d Deployment) String() string {
	return fmt.Sprintf("%s (bit %d, start %d, timeout %d, %d of %d)",
		d.Name, d.Bit, d.StartTime, d.Timeout, d.Threshold, d.Period)
}

// VersionBitsMask returns the version bits mask used by the provided
// deployment.
func VersionBitsMask(d *Deployment) uint32 {
	return d.Mask()
}

// IsSignaling returns whether the provided block version signals for the
// given bit.  The top bits of the version must match VersionBitsTopBits in
// addition to the bit being set.  Bits outside of the VersionBitsNumBits
// signaling bits never signal.
func IsSignaling(version int32, bit uint8) bool {
	if bit >= VersionBitsNumBits {
		return false
	}
	v := uint32(version)
	return v&VersionBitsTopMask == VersionBitsTopBits && v&(uint32(1)<<bit) != 0
}
