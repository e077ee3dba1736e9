// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/versionbits/versionbits"
)

// segment describes a run of consecutive simulated blocks that share the same
// timing and signaling behavior.
type segment struct {
	// count is the number of blocks in the segment.
	count int64

	// timestamp is either the absolute timestamp of every block in the
	// segment or, when relative is set, the number of seconds between each
	// block and its parent.
	timestamp int64
	relative  bool

	// version is the block version of the signaling blocks of the segment.
	version int32

	// signaling is the number of blocks at the start of the segment that use
	// version.  The remaining blocks only set the version bits top bits.
	signaling int64
}

// parseInt64Field parses a decimal field of a colon separated option value.
func parseInt64Field(option, field, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q in %s", field, s, option)
	}
	return v, nil
}

// parseBits parses a comma separated list of signaling bits into a block
// version.  An empty list results in a version that only sets the version bits
// top bits.
func parseBits(s string) (int32, error) {
	version := uint32(versionbits.VersionBitsTopBits)
	if s == "" {
		return int32(version), nil
	}
	for _, field := range strings.Split(s, ",") {
		bit, err := strconv.ParseUint(field, 10, 8)
		if err != nil || bit >= versionbits.VersionBitsNumBits {
			return 0, fmt.Errorf("invalid signaling bit %q -- must be less "+
				"than %d", field, versionbits.VersionBitsNumBits)
		}
		version |= 1 << bit
	}
	return int32(version), nil
}

// parseSegment parses a segment in the form count:time[:bits[:signaling]].
//
// The time is either an absolute unix timestamp applied to every block or a
// number of seconds prefixed with '+' that separates each block from its
// parent.  The bits are a comma separated list of version bits to signal with
// and signaling is the number of blocks at the start of the segment that
// signal.  All blocks signal when it is omitted.
func parseSegment(s string) (segment, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 4 {
		return segment{}, fmt.Errorf("malformed segment %q -- must be in the "+
			"form count:time[:bits[:signaling]]", s)
	}

	var seg segment
	var err error
	seg.count, err = parseInt64Field("segment", "block count", fields[0])
	if err != nil {
		return segment{}, err
	}
	if seg.count <= 0 {
		return segment{}, fmt.Errorf("segment %q must contain at least one "+
			"block", s)
	}

	timeField := fields[1]
	if strings.HasPrefix(timeField, "+") {
		seg.relative = true
		timeField = timeField[1:]
	}
	seg.timestamp, err = parseInt64Field("segment", "time", timeField)
	if err != nil {
		return segment{}, err
	}
	if seg.timestamp < 0 {
		return segment{}, fmt.Errorf("segment %q time must not be negative", s)
	}

	seg.version = versionbits.LastOldBlockVersion
	seg.signaling = seg.count
	if len(fields) > 2 {
		seg.version, err = parseBits(fields[2])
		if err != nil {
			return segment{}, err
		}
	}
	if len(fields) > 3 {
		seg.signaling, err = parseInt64Field("segment", "signaling count",
			fields[3])
		if err != nil {
			return segment{}, err
		}
		if seg.signaling < 0 || seg.signaling > seg.count {
			return segment{}, fmt.Errorf("segment %q signaling count must "+
				"be between 0 and %d", s, seg.count)
		}
	}
	return seg, nil
}

// parseDeployment parses a deployment in the form
// name:bit:start:timeout:period:threshold.  The start may be "always" to
// create a deployment that is always active and the timeout may be "never" for
// a deployment that does not expire.
func parseDeployment(s string) (versionbits.Deployment, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 6 {
		return versionbits.Deployment{}, fmt.Errorf("malformed deployment %q "+
			"-- must be in the form name:bit:start:timeout:period:threshold", s)
	}

	d := versionbits.Deployment{Name: fields[0]}
	if d.Name == "" {
		return versionbits.Deployment{}, fmt.Errorf("deployment %q has an "+
			"empty name", s)
	}
	bit, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return versionbits.Deployment{}, fmt.Errorf("invalid bit %q in "+
			"deployment %q", fields[1], s)
	}
	d.Bit = uint8(bit)

	switch fields[2] {
	case "always":
		d.StartTime = versionbits.AlwaysActive
	default:
		d.StartTime, err = parseInt64Field("deployment", "start time", fields[2])
		if err != nil {
			return versionbits.Deployment{}, err
		}
	}
	switch fields[3] {
	case "never":
		d.Timeout = versionbits.NoTimeout
	default:
		d.Timeout, err = parseInt64Field("deployment", "timeout", fields[3])
		if err != nil {
			return versionbits.Deployment{}, err
		}
	}
	d.Period, err = parseInt64Field("deployment", "period", fields[4])
	if err != nil {
		return versionbits.Deployment{}, err
	}
	d.Threshold, err = parseInt64Field("deployment", "threshold", fields[5])
	if err != nil {
		return versionbits.Deployment{}, err
	}
	return d, nil
}

// defaultSegments returns a scenario that starts every provided deployment and
// then signals for all of them for long enough to activate them.
func defaultSegments(genesisTime int64, deployments []versionbits.Deployment) []segment {
	const blockInterval = 600

	var maxPeriod int64 = 1
	startTime := genesisTime
	version := uint32(versionbits.VersionBitsTopBits)
	for i := range deployments {
		d := &deployments[i]
		if d.IsAlwaysActive() || !d.IsViable() {
			continue
		}
		maxPeriod = max(maxPeriod, d.Period)
		startTime = max(startTime, d.StartTime)
		version |= d.Mask()
	}

	// Allow enough blocks for the median time past to reach the start time
	// followed by a full period each to start, lock in and activate.
	return []segment{{
		count:     maxPeriod,
		timestamp: startTime,
		version:   versionbits.LastOldBlockVersion,
		signaling: maxPeriod,
	}, {
		count:     maxPeriod * 3,
		timestamp: blockInterval,
		relative:  true,
		version:   int32(version),
		signaling: maxPeriod * 3,
	}}
}
