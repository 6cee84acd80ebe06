// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ZMQ transports bitcoind can publish on.
const (
	zmqTCP = "tcp://"
	zmqIPC = "ipc://"
)

// NormalizeAddress returns addr as host:port, appending defaultPort when addr
// carries no port.  An error is returned if the address, even without a port,
// is not valid.
func NormalizeAddress(addr string, defaultPort string) (string, error) {
	// If the first SplitHostPort errors because of a missing port and not
	// for an invalid host, add the port.  If the second SplitHostPort
	// fails, then a port is not missing and the original error should be
	// returned.
	host, port, origErr := net.SplitHostPort(addr)
	if origErr == nil {
		return net.JoinHostPort(host, port), nil
	}

	// A bracketed IPv6 host without a port is joined from its bare form,
	// as JoinHostPort adds the brackets itself.
	host = addr
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	withPort := net.JoinHostPort(host, defaultPort)
	if _, _, err := net.SplitHostPort(withPort); err != nil {
		return "", origErr
	}
	return withPort, nil
}

// NormalizeAddresses normalizes every address with defaultPort and drops
// duplicates, keeping the first occurrence.
func NormalizeAddresses(addrs []string, defaultPort string) ([]string, error) {
	normalized := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))

	for _, addr := range addrs {
		n, err := NormalizeAddress(addr, defaultPort)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}

	return normalized, nil
}

// NormalizeZMQEndpoint returns endpoint in the form bitcoind uses for its
// zmqpub options.  Endpoints without a transport are taken as tcp and get
// defaultPort when they carry no port.  ipc endpoints are returned unchanged.
func NormalizeZMQEndpoint(endpoint string, defaultPort string) (string,
	error) {

	if strings.HasPrefix(endpoint, zmqIPC) {
		if len(endpoint) == len(zmqIPC) {
			return "", errors.New("empty zmq ipc path")
		}
		return endpoint, nil
	}

	addr := strings.TrimPrefix(endpoint, zmqTCP)
	if strings.Contains(addr, "://") {
		return "", fmt.Errorf("unsupported zmq transport in %q", endpoint)
	}

	addr, err := NormalizeAddress(addr, defaultPort)
	if err != nil {
		return "", err
	}
	return zmqTCP + addr, nil
}
