// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package pauth // import "github.com/parts-pauth/parts/pauth"

import (
	"github.com/parts-pauth/parts/mir"
	"github.com/parts-pauth/parts/typeid"
)

// liveState tracks a signed pointer that stays live in its register after
// being stored. Signing happens in place, so a second store of the same
// register must not sign it again. The signature binds the type identifier
// of the first store, so the register can only be stored again under the
// same identifier.
//
// The zero value is Idle.
type liveState struct {
	pending mir.Reg
	id      typeid.TypeID
	active  bool
}

// Pending returns the register holding a live signed pointer.
func (s *liveState) Pending() (mir.Reg, bool) {
	return s.pending, s.active
}

func (s *liveState) reset() {
	*s = liveState{}
}

// store advances the state for an instrumented store of reg under id and
// reports whether reg must be signed before it.
func (s *liveState) store(reg mir.Reg, id typeid.TypeID, killed bool) (bool, error) {
	if !s.active {
		if !killed {
			s.pending, s.id, s.active = reg, id, true
		}
		return true, nil
	}
	switch {
	case s.pending == reg && s.id != id:
		return false, defectf("%v stored as %v while still signed as %v", reg, id, s.id)
	case s.pending == reg:
		if killed {
			s.reset()
		}
		return false, nil
	case killed:
		return true, nil
	}
	return false, defectf("%v stored while signed pointer in %v is still live", reg, s.pending)
}

// observe advances the state past an instruction that is not an
// instrumented store.
func (s *liveState) observe(in *mir.Instr) {
	if s.active && (in.Defines(s.pending) || in.Kills(s.pending)) {
		s.reset()
	}
}
