// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/wire"
	"github.com/decred/versionbits/versionbits"
)

// Params is used to group the version bits deployments of a network with the
// chain parameters of that network.
type Params struct {
	*chaincfg.Params

	// Deployments defines the deployments that miners signal for on the
	// network.
	Deployments []versionbits.Deployment
}

// MainNetParams contains parameters specific to the main network
// (wire.MainNet).
var MainNetParams = Params{
	Params: chaincfg.MainNetParams(),
	Deployments: []versionbits.Deployment{{
		Name:      "csv",
		Bit:       0,
		StartTime: 1462060800, // May 1st, 2016
		Timeout:   1493596800, // May 1st, 2017
		Period:    2016,
		Threshold: 1916, // 95%
	}, {
		Name:      "segwit",
		Bit:       1,
		StartTime: 1479168000, // November 15th, 2016
		Timeout:   1510704000, // November 15th, 2017
		Period:    2016,
		Threshold: 1916, // 95%
	}},
}

// TestNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var TestNet3Params = Params{
	Params: chaincfg.TestNet3Params(),
	Deployments: []versionbits.Deployment{{
		Name:      "csv",
		Bit:       0,
		StartTime: 1456790400, // March 1st, 2016
		Timeout:   1493596800, // May 1st, 2017
		Period:    2016,
		Threshold: 1512, // 75%
	}, {
		Name:      "segwit",
		Bit:       1,
		StartTime: 1462060800, // May 1st, 2016
		Timeout:   1493596800, // May 1st, 2017
		Period:    2016,
		Threshold: 1512, // 75%
	}},
}

// SimNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var SimNetParams = Params{
	Params: chaincfg.SimNetParams(),
	Deployments: []versionbits.Deployment{{
		Name:      "csv",
		Bit:       0,
		StartTime: versionbits.AlwaysActive,
		Timeout:   versionbits.NoTimeout,
		Period:    144,
		Threshold: 108, // 75%
	}, {
		Name:      "segwit",
		Bit:       1,
		StartTime: 0,
		Timeout:   versionbits.NoTimeout,
		Period:    144,
		Threshold: 108, // 75%
	}, {
		Name:      "testdummy",
		Bit:       28,
		StartTime: 0,
		Timeout:   versionbits.NoTimeout,
		Period:    144,
		Threshold: 108, // 75%
	}},
}

// RegNetParams contains parameters specific to the regression test network
// (wire.RegNet).
var RegNetParams = Params{
	Params: chaincfg.RegNetParams(),
	Deployments: []versionbits.Deployment{{
		Name:      "csv",
		Bit:       0,
		StartTime: versionbits.AlwaysActive,
		Timeout:   versionbits.NoTimeout,
		Period:    144,
		Threshold: 108, // 75%
	}, {
		Name:      "testdummy",
		Bit:       28,
		StartTime: 0,
		Timeout:   versionbits.NoTimeout,
		Period:    144,
		Threshold: 108, // 75%
	}},
}

// ByName returns the parameters of the network with the provided name.
func ByName(name string) (*Params, error) {
	for _, params := range []*Params{&MainNetParams, &TestNet3Params,
		&SimNetParams, &RegNetParams} {

		if params.Name == name {
			return params, nil
		}
	}
	return nil, fmt.Errorf("unknown network %q", name)
}

// GenesisHeader returns a copy of the header of the genesis block of the
// network.
func (p *Params) GenesisHeader() *wire.BlockHeader {
	header := p.GenesisBlock.Header
	return &header
}

// GenesisTimestamp returns the timestamp of the genesis block of the network
// as a unix time.
func (p *Params) GenesisTimestamp() int64 {
	return p.GenesisBlock.Header.Timestamp.Unix()
}

// Validate ensures the deployments of the network can all be registered
// together, which requires unique names and signaling bits that are in range
// and unused by other deployments, and that none of them are permanently
// failed.
func (p *Params) Validate() error {
	registry := versionbits.NewRegistry(nil)
	for i := range p.Deployments {
		d := &p.Deployments[i]
		if err := registry.AddDeployment(*d); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if err := d.CheckViable(); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

// Registry returns a new registry with all of the deployments of the network
// registered along with the provided extra deployments.
func (p *Params) Registry(cfg *versionbits.Config, extra ...versionbits.Deployment) (*versionbits.Registry, error) {
	registry := versionbits.NewRegistry(cfg)
	for _, d := range p.Deployments {
		if err := registry.AddDeployment(d); err != nil {
			return nil, err
		}
	}
	for _, d := range extra {
		if err := registry.AddDeployment(d); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
