// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/versionbits/versionbits"
)

// TestParseSegment ensures segments are parsed as expected and malformed
// segments are rejected.
func TestParseSegment(t *testing.T) {
	t.Parallel()

	const topBits = versionbits.VersionBitsTopBits
	tests := []struct {
		name    string
		in      string
		want    segment
		wantErr bool
	}{{
		name: "absolute time without bits",
		in:   "100:1600000000",
		want: segment{count: 100, timestamp: 1600000000,
			version: versionbits.LastOldBlockVersion, signaling: 100},
	}, {
		name: "relative time",
		in:   "10:+600",
		want: segment{count: 10, timestamp: 600, relative: true,
			version: versionbits.LastOldBlockVersion, signaling: 10},
	}, {
		name: "single bit",
		in:   "10:+600:1",
		want: segment{count: 10, timestamp: 600, relative: true,
			version: topBits | 1<<1, signaling: 10},
	}, {
		name: "multiple bits with signaling count",
		in:   "10:+600:0,28:7",
		want: segment{count: 10, timestamp: 600, relative: true,
			version: topBits | 1 | 1<<28, signaling: 7},
	}, {
		name: "empty bits",
		in:   "10:+600::0",
		want: segment{count: 10, timestamp: 600, relative: true,
			version: topBits, signaling: 0},
	}, {
		name:    "missing time",
		in:      "10",
		wantErr: true,
	}, {
		name:    "too many fields",
		in:      "10:+600:1:5:5",
		wantErr: true,
	}, {
		name:    "zero count",
		in:      "0:+600",
		wantErr: true,
	}, {
		name:    "invalid count",
		in:      "x:+600",
		wantErr: true,
	}, {
		name:    "negative time",
		in:      "10:-5",
		wantErr: true,
	}, {
		name:    "bit out of range",
		in:      "10:+600:29",
		wantErr: true,
	}, {
		name:    "signaling count above block count",
		in:      "10:+600:1:11",
		wantErr: true,
	}}

	for _, test := range tests {
		got, err := parseSegment(test.in)
		if test.wantErr {
			if err == nil {
				t.Errorf("%q: did not receive expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.name, err)
			continue
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%q: mismatched segment\ngot: %v\nwant: %v", test.name,
				spew.Sdump(got), spew.Sdump(test.want))
		}
	}
}

// TestParseDeployment ensures deployments are parsed as expected and malformed
// deployments are rejected.
func TestParseDeployment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    versionbits.Deployment
		wantErr bool
	}{{
		name: "typical",
		in:   "taproot:2:1600000000:1700000000:2016:1815",
		want: versionbits.Deployment{Name: "taproot", Bit: 2,
			StartTime: 1600000000, Timeout: 1700000000, Period: 2016,
			Threshold: 1815},
	}, {
		name: "always active without timeout",
		in:   "buried:3:always:never:144:108",
		want: versionbits.Deployment{Name: "buried", Bit: 3,
			StartTime: versionbits.AlwaysActive,
			Timeout:   versionbits.NoTimeout, Period: 144, Threshold: 108},
	}, {
		name: "non-viable parameters are parsed",
		in:   "broken:4:200:100:10:11",
		want: versionbits.Deployment{Name: "broken", Bit: 4, StartTime: 200,
			Timeout: 100, Period: 10, Threshold: 11},
	}, {
		name:    "missing fields",
		in:      "taproot:2:0:never:2016",
		wantErr: true,
	}, {
		name:    "empty name",
		in:      ":2:0:never:2016:1815",
		wantErr: true,
	}, {
		name:    "invalid bit",
		in:      "taproot:x:0:never:2016:1815",
		wantErr: true,
	}, {
		name:    "invalid start",
		in:      "taproot:2:soon:never:2016:1815",
		wantErr: true,
	}, {
		name:    "invalid threshold",
		in:      "taproot:2:0:never:2016:most",
		wantErr: true,
	}}

	for _, test := range tests {
		got, err := parseDeployment(test.in)
		if test.wantErr {
			if err == nil {
				t.Errorf("%q: did not receive expected error", test.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("%q: mismatched deployment\ngot: %v\nwant: %v",
				test.name, spew.Sdump(got), spew.Sdump(test.want))
		}
	}
}

// TestDefaultSegments ensures the default scenario signals for every viable
// deployment that is not always active and starts no earlier than the latest
// start time.
func TestDefaultSegments(t *testing.T) {
	t.Parallel()

	deployments := []versionbits.Deployment{{
		Name: "a", Bit: 0, StartTime: 1000, Timeout: versionbits.NoTimeout,
		Period: 10, Threshold: 8,
	}, {
		Name: "b", Bit: 5, StartTime: 2000, Timeout: versionbits.NoTimeout,
		Period: 20, Threshold: 15,
	}, {
		Name: "always", Bit: 6, StartTime: versionbits.AlwaysActive,
		Period: 30, Threshold: 1,
	}, {
		Name: "failed", Bit: 7, StartTime: 5000, Timeout: 4000, Period: 40,
		Threshold: 1,
	}}
	segments := defaultSegments(500, deployments)
	if len(segments) != 2 {
		t.Fatalf("unexpected number of segments %d", len(segments))
	}
	if segments[0].count != 20 || segments[0].timestamp != 2000 {
		t.Fatalf("unexpected first segment %+v", segments[0])
	}
	wantVersion := int32(versionbits.VersionBitsTopBits | 1 | 1<<5)
	if segments[1].count != 60 || segments[1].version != wantVersion ||
		!segments[1].relative {

		t.Fatalf("unexpected second segment %+v", segments[1])
	}
}
