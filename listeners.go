// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"runtime"
)

// parseListeners splits the list of listen addresses passed in addrs into
// IPv4 and IPv6 slices and returns them.  This allows easy creation of the
// listeners on the correct interface "tcp4" and "tcp6".  It also properly
// detects addresses which apply to "all interfaces" and adds the address to
// both slices.
func parseListeners(addrs []string) ([]string, []string, error) {
	ipv4ListenAddrs := make([]string, 0, len(addrs)*2)
	ipv6ListenAddrs := make([]string, 0, len(addrs)*2)
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, nil, err
		}

		// Empty host or host of * on plan9 is both IPv4 and IPv6.
		if host == "" || (host == "*" && runtime.GOOS == "plan9") {
			ipv4ListenAddrs = append(ipv4ListenAddrs, addr)
			ipv6ListenAddrs = append(ipv6ListenAddrs, addr)
			continue
		}

		// Parse the IP.
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, nil, fmt.Errorf("'%s' is not a valid IP "+
				"address", host)
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			ipv6ListenAddrs = append(ipv6ListenAddrs, addr)
		} else {
			ipv4ListenAddrs = append(ipv4ListenAddrs, addr)
		}
	}
	return ipv4ListenAddrs, ipv6ListenAddrs, nil
}

// makeListeners opens a listener for every address. Addresses that fail to
// listen are logged and skipped; an error is returned only when none could be
// opened.
func makeListeners(addrs []string) ([]net.Listener, error) {
	ipv4Addrs, ipv6Addrs, err := parseListeners(addrs)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(ipv4Addrs)+len(ipv6Addrs))
	listen := func(network string, addrs []string) {
		for _, addr := range addrs {
			lis, err := net.Listen(network, addr)
			if err != nil {
				log.Warnf("Can't listen on %s: %v", addr, err)
				continue
			}
			listeners = append(listeners, lis)
		}
	}
	listen("tcp4", ipv4Addrs)
	listen("tcp6", ipv6Addrs)

	if len(listeners) == 0 {
		return nil, fmt.Errorf("no valid listen address in %v", addrs)
	}
	return listeners, nil
}
