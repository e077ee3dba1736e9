// Copyright (c) 2024-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"net/netip"
	"strconv"
	"sync"
	"time"
)

// portToLocalHostAddr prepends a default host of 127.0.0.1 when the provided
// address is solely a port number.
func portToLocalHostAddr(addr string) string {
	if _, err := strconv.Atoi(addr); err == nil {
		addr = net.JoinHostPort("127.0.0.1", addr)
	}
	return addr
}

// validateProfileAddr ensures the provided address is a loopback "ip:port"
// with a port between 1024 and 65535.
func validateProfileAddr(addr string) error {
	addrPort, err := netip.ParseAddrPort(addr)
	if err != nil {
		return err
	}
	if port := addrPort.Port(); port < 1024 {
		str := "address %q: port must be between 1024 and 65535"
		return fmt.Errorf(str, addr)
	}
	if !addrPort.Addr().IsLoopback() {
		return fmt.Errorf("address %q: profiling is only permitted on "+
			"loopback addresses", addr)
	}
	return nil
}

// profileServer serves the pprof profiling endpoints over HTTP while a
// simulation runs.
type profileServer struct {
	wg       sync.WaitGroup
	mtx      sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Start binds a listener to the provided address and serves the profiling
// endpoints in the background.  It has no effect when the server is already
// running.
//
// It is the caller's responsibility to call Stop to shutdown the server.
func (s *profileServer) Start(listenAddr string) error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	if s.server != nil {
		return nil
	}

	listenAddr = portToLocalHostAddr(listenAddr)
	if err := validateProfileAddr(listenAddr); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", listenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 3,
	}
	s.listener = listener
	simLog.Infof("Profiling server listening on %s", listener.Addr())
	s.wg.Add(1)
	go func(httpServer *http.Server) {
		defer s.wg.Done()

		err := httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			simLog.Errorf("Profiling server listening on %s exited with "+
				"unexpected error: %v", listener.Addr(), err)
		}
	}(s.server)
	return nil
}

// Addr returns the address the server is listening on or nil when it is not
// running.
func (s *profileServer) Addr() net.Addr {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop immediately closes the listener and any connections to the server.  It
// has no effect when the server is not running.
func (s *profileServer) Stop() error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	s.listener = nil
	s.wg.Wait()
	if err != nil {
		simLog.Errorf("Profiling server stopped with unexpected error: %v",
			err)
		return err
	}
	simLog.Info("Profiling server stopped")
	return nil
}
