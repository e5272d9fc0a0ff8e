package client

import (
	"errors"
	"sync/atomic"
)

var (
	ErrContainerNotLoaded = errors.New("container not loaded")
	ErrEntityNotFound     = errors.New("entity not found")
)

// MutationState — машина состояний оптимистичной мутации:
// Local → Pending → Confirmed | RolledBack.
type MutationState int32

const (
	MutationLocal MutationState = iota
	MutationPending
	MutationConfirmed
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationLocal:
		return "local"
	case MutationPending:
		return "pending"
	case MutationConfirmed:
		return "confirmed"
	case MutationRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mutation — клиентская запись оптимистичной мутации. EntityID меняется
// с локального на серверный, когда сервер вернул авторитетный объект.
type Mutation struct {
	LocalID   string
	EntityID  string
	Container string

	state    atomic.Int32
	snapshot []Record // список до применения, для отката
}

func (m *Mutation) State() MutationState {
	return MutationState(m.state.Load())
}

func (m *Mutation) setState(s MutationState) {
	// терминальные состояния не перезаписываются: поздний ack после
	// отката не «воскрешает» мутацию
	for {
		cur := m.state.Load()
		if MutationState(cur) == MutationRolledBack {
			return
		}
		if m.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}
