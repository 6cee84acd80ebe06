// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"sort"

	"github.com/google/uuid"
)

// NewInvite returns a gen_invite body whose invite does not collide with any
// invite already in s.
func NewInvite(s *State, invitor, label string) *InviteRecord {
	invite := uuid.New()
	for {
		if _, ok := s.Invites[invite]; !ok {
			break
		}
		invite = uuid.New()
	}

	return &InviteRecord{
		Invite:  invite,
		Invitor: invitor,
		Label:   label,
	}
}

// InvitesBy returns the invites generated by invitor ordered by label.
func (s *State) InvitesBy(invitor string) []InviteRecord {
	var out []InviteRecord
	for _, inv := range s.Invites {
		if inv.Invitor == invitor {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label == out[j].Label {
			return out[i].Invite.String() < out[j].Invite.String()
		}
		return out[i].Label < out[j].Label
	})
	return out
}
