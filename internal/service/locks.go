package service

import (
	"sync"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/google/uuid"
)

type stageKey struct {
	tournamentID uuid.UUID
	stage        racing.Stage
}

// StageLocks serializes writers per (tournament, stage). The caller owns the
// instance and hands it to every service that mutates stage state, so course
// selection and the stage mutation it accompanies run under the same lock.
type StageLocks struct {
	mu    sync.Mutex
	locks map[stageKey]*sync.Mutex
}

func NewStageLocks() *StageLocks {
	return &StageLocks{locks: make(map[stageKey]*sync.Mutex)}
}

// Acquire locks the (tournament, stage) pair and returns the unlock func.
func (l *StageLocks) Acquire(tournamentID uuid.UUID, stage racing.Stage) func() {
	key := stageKey{tournamentID: tournamentID, stage: stage}

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
