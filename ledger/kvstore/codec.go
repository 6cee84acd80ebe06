// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kvstore

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/ledger"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typeUpdateID      tlv.Type = 0
	typeUpdateCreated tlv.Type = 1
	typeUpdateKind    tlv.Type = 2
	typeUpdateBody    tlv.Type = 3
)

// encodeUpdate serializes u as a TLV stream of its id, creation time in unix
// nanoseconds, kind tag and JSON body.
func encodeUpdate(u ledger.StateUpdate) ([]byte, error) {
	body, err := ledger.EncodeUpdateBody(u.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	var (
		id      = u.ID[:]
		created = uint64(u.Created.UnixNano())
		kind    = []byte(u.Kind())
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeUpdateID, &id),
		tlv.MakePrimitiveRecord(typeUpdateCreated, &created),
		tlv.MakePrimitiveRecord(typeUpdateKind, &kind),
		tlv.MakePrimitiveRecord(typeUpdateBody, &body),
	)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decodeUpdate is the inverse of encodeUpdate.
func decodeUpdate(b []byte) (ledger.StateUpdate, error) {
	var (
		id      []byte
		created uint64
		kind    []byte
		body    []byte
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeUpdateID, &id),
		tlv.MakePrimitiveRecord(typeUpdateCreated, &created),
		tlv.MakePrimitiveRecord(typeUpdateKind, &kind),
		tlv.MakePrimitiveRecord(typeUpdateBody, &body),
	)
	if err != nil {
		return ledger.StateUpdate{}, err
	}
	if err := stream.Decode(bytes.NewReader(b)); err != nil {
		return ledger.StateUpdate{}, err
	}

	updateID, err := uuid.FromBytes(id)
	if err != nil {
		return ledger.StateUpdate{}, fmt.Errorf("update id: %w", err)
	}

	decoded, err := ledger.DecodeUpdateBody(ledger.UpdateKind(kind), body)
	if err != nil {
		return ledger.StateUpdate{}, err
	}

	return ledger.StateUpdate{
		ID:      updateID,
		Created: time.Unix(0, int64(created)).UTC(),
		Body:    decoded,
	}, nil
}
