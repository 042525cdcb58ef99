//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package session defines the per-sender dialog state and its storage
// contract. Sessions are in-memory and ephemeral: they do not survive a
// process restart or a flow change.
package session

import "time"

// HistoryEntry is one append-only audit record. Two shapes exist: the inbound
// record written when a known sender sends a message, and the transition
// record written on every node hop.
type HistoryEntry struct {
	NodeBeforeInput string `json:"node_before_input,omitempty"`
	TriggerReceived string `json:"trigger_received,omitempty"`
	TransitionedTo  string `json:"transitioned_to_node,omitempty"`
	ViaTrigger      string `json:"via_trigger,omitempty"`
}

// Session is the dialog state of one sender. CurrentNodeID always names a
// node the sender is waiting at, never a transient one; a session whose
// traversal ends is deleted rather than left on a terminal node.
type Session struct {
	SenderID      string
	CurrentNodeID string
	Variables     map[string]string
	History       []HistoryEntry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New creates a session positioned at the given start node.
func New(senderID, startNodeID string) *Session {
	now := time.Now()
	return &Session{
		SenderID:      senderID,
		CurrentNodeID: startNodeID,
		Variables:     make(map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Service is the session store contract. Implementations must serialize
// access per sender: two inbound messages for the same sender must not
// interleave their state updates, while distinct senders proceed in
// parallel. LockSender grants that exclusion; the engine holds it for the
// whole processing step.
type Service interface {
	// LockSender acquires the per-sender lock and returns its release func.
	LockSender(senderID string) (unlock func())

	// Get returns the sender's session, if any.
	Get(senderID string) (*Session, bool)

	// Save stores or replaces the sender's session.
	Save(sess *Session)

	// Delete removes the sender's session.
	Delete(senderID string)

	// Clear removes every session and returns how many were purged.
	Clear() int

	// Count returns the number of live sessions.
	Count() int
}
