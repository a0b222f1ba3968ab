// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package grant

import "sync"

type pairKey struct {
	tenantID       int64
	professionalID int64
}

type pairLockEntry struct {
	mu   sync.Mutex
	refs int
}

// pairLocks serializes writers per (tenant, professional). Entries are
// dropped once no goroutine holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*pairLockEntry
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*pairLockEntry)}
}

func (l *pairLocks) lock(tenantID, professionalID int64) func() {
	key := pairKey{tenantID, professionalID}

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &pairLockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *pairLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
