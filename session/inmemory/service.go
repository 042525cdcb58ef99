//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the in-memory session service implementation.
package inmemory

import (
	"sync"
	"time"

	"trpc.group/trpc-go/flow-controller/session"
)

var _ session.Service = (*Service)(nil)

// senderEntry pairs a sender's session with the mutex serializing that
// sender's processing. The entry outlives the session so an unlock issued
// before a Clear still releases the right mutex.
type senderEntry struct {
	mu   sync.Mutex
	sess *session.Session
}

// Service is an in-memory session store with per-sender exclusion. The outer
// RWMutex guards the maps only; the per-sender mutex is held across a whole
// engine step.
type Service struct {
	mu      sync.RWMutex
	entries map[string]*senderEntry
}

// NewService creates an empty in-memory session service.
func NewService() *Service {
	return &Service{entries: make(map[string]*senderEntry)}
}

func (s *Service) getOrCreateEntry(senderID string) *senderEntry {
	s.mu.RLock()
	e, ok := s.entries[senderID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[senderID]; ok {
		return e
	}
	e = &senderEntry{}
	s.entries[senderID] = e
	return e
}

// LockSender acquires the per-sender lock and returns its release func.
func (s *Service) LockSender(senderID string) func() {
	e := s.getOrCreateEntry(senderID)
	e.mu.Lock()
	return e.mu.Unlock
}

// Get returns the sender's session, if any.
func (s *Service) Get(senderID string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[senderID]
	if !ok || e.sess == nil {
		return nil, false
	}
	return e.sess, true
}

// Save stores or replaces the sender's session.
func (s *Service) Save(sess *session.Session) {
	if sess == nil {
		return
	}
	sess.UpdatedAt = time.Now()
	e := s.getOrCreateEntry(sess.SenderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.sess = sess
}

// Delete removes the sender's session. The sender's lock entry stays so a
// concurrent holder can still release it.
func (s *Service) Delete(senderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[senderID]; ok {
		e.sess = nil
	}
}

// Clear removes every session and returns how many were purged.
func (s *Service) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for _, e := range s.entries {
		if e.sess != nil {
			purged++
			e.sess = nil
		}
	}
	return purged
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		if e.sess != nil {
			count++
		}
	}
	return count
}
