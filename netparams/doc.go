// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package netparams defines the version bits deployments of each network.

The parameters embed the chain parameters of the underlying network, so the
genesis block, target block time and network identifiers are available
alongside the deployments that are voted on by miners.

	params, err := netparams.ByName("regnet")
	if err != nil {
		return err
	}
	registry := versionbits.NewRegistry(nil)
	for _, d := range params.Deployments {
		if err := registry.AddDeployment(d); err != nil {
			return err
		}
	}
*/
package netparams
