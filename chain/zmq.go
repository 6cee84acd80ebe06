// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lightninglabs/gozmq"
)

const (
	hashBlockZMQCommand = "hashblock"
	hashTxZMQCommand    = "hashtx"

	// seqNumLen is the length of the sequence number of a message sent
	// from bitcoind through ZMQ.
	seqNumLen = 4
)

// ZMQTrigger subscribes to bitcoind hashblock and hashtx notifications and
// turns them into coalesced wake-up signals. The payloads are not used; the
// receiver is expected to poll the node.
type ZMQTrigger struct {
	blockConn *gozmq.Conn
	txConn    *gozmq.Conn

	signals chan struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewZMQTrigger connects to the ZMQ endpoints of bitcoind. txHost may be
// empty, in which case only blocks trigger a signal.
func NewZMQTrigger(blockHost, txHost string,
	readDeadline time.Duration) (*ZMQTrigger, error) {

	blockConn, err := gozmq.Subscribe(
		blockHost, []string{hashBlockZMQCommand}, readDeadline,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to subscribe for zmq block "+
			"events: %v", err)
	}

	z := &ZMQTrigger{
		blockConn: blockConn,
		signals:   make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}

	if txHost == "" {
		return z, nil
	}

	z.txConn, err = gozmq.Subscribe(
		txHost, []string{hashTxZMQCommand}, readDeadline,
	)
	if err != nil {
		if err := blockConn.Close(); err != nil {
			log.Errorf("could not close zmq block conn: %v", err)
		}

		return nil, fmt.Errorf("unable to subscribe for zmq tx "+
			"events: %v", err)
	}

	return z, nil
}

// Start launches the receive loops.
func (z *ZMQTrigger) Start() {
	z.wg.Add(1)
	go z.receive(z.blockConn, hashBlockZMQCommand)

	if z.txConn != nil {
		z.wg.Add(1)
		go z.receive(z.txConn, hashTxZMQCommand)
	}
}

// Stop closes the connections and waits for the receive loops to exit.
func (z *ZMQTrigger) Stop() {
	close(z.quit)

	if z.txConn != nil {
		if err := z.txConn.Close(); err != nil {
			log.Errorf("could not close zmq tx conn: %v", err)
		}
	}
	if err := z.blockConn.Close(); err != nil {
		log.Errorf("could not close zmq block conn: %v", err)
	}

	z.wg.Wait()
}

// Signals returns the wake-up channel. Bursts of notifications collapse into
// a single pending signal.
func (z *ZMQTrigger) Signals() <-chan struct{} {
	return z.signals
}

func (z *ZMQTrigger) notify() {
	select {
	case z.signals <- struct{}{}:
	default:
	}
}

func (z *ZMQTrigger) receive(conn *gozmq.Conn, command string) {
	defer z.wg.Done()

	log.Infof("Started listening for bitcoind %s notifications via ZMQ "+
		"on %v", command, conn.RemoteAddr())

	// ZMQ messages from bitcoind include three parts: the command, the
	// 32 byte hash, and the sequence number.
	var (
		cmd    = make([]byte, len(command))
		hash   = make([]byte, 32)
		seqNum [seqNumLen]byte
	)

	for {
		select {
		case <-z.quit:
			return
		default:
		}

		bufs, err := conn.Receive([][]byte{cmd, hash, seqNum[:]})
		if err != nil {
			// EOF is only returned once the connection was closed.
			if errors.Is(err, io.EOF) {
				return
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Tracef("Re-establishing timed out ZMQ %s "+
					"connection", command)
				continue
			}

			select {
			case <-z.quit:
				return
			default:
			}

			log.Errorf("Unable to receive ZMQ %v message: %v",
				command, err)
			continue
		}

		if string(bufs[0]) != command {
			log.Warnf("Received unexpected ZMQ event %q", bufs[0])
			continue
		}

		log.Tracef("ZMQ %s notification", command)
		z.notify()
	}
}
