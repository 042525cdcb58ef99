//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"trpc.group/trpc-go/flow-controller/flow"
	"trpc.group/trpc-go/flow-controller/log"
)

// nextEdge resolves the outgoing edge to follow from nodeID. Priority order:
//
//  1. external trigger matching an edge's sourceHandle exactly,
//  2. any external input leaving a waitInput node through "source-received",
//  3. the error trigger leaving through "source-error",
//  4. the first default-handle edge in declaration order.
//
// It returns the target node id, or "" when no edge applies.
func nextEdge(f *flow.Flow, nodeID, trigger string, sourceType flow.NodeType) string {
	out := f.Outgoing(nodeID)

	if trigger != "" && !isInternalTrigger(trigger) {
		for _, e := range out {
			if e.SourceHandle == trigger {
				log.Debugf("edge from %q by handle %q -> %q", nodeID, trigger, e.Target)
				return e.Target
			}
		}
	}

	if sourceType == flow.NodeTypeWaitInput &&
		trigger != TriggerStartFlow && trigger != TriggerTransition {
		for _, e := range out {
			if e.SourceHandle == flow.HandleReceived {
				log.Debugf("edge from %q via %q -> %q", nodeID, flow.HandleReceived, e.Target)
				return e.Target
			}
		}
	}

	if trigger == TriggerError {
		for _, e := range out {
			if e.SourceHandle == flow.HandleError {
				log.Infof("edge from %q via %q -> %q", nodeID, flow.HandleError, e.Target)
				return e.Target
			}
		}
	}

	var chosen *flow.Edge
	defaults := 0
	for _, e := range out {
		if flow.IsDefaultHandle(e.SourceHandle) {
			if chosen == nil {
				chosen = e
			}
			defaults++
		}
	}
	if chosen != nil {
		if defaults > 1 {
			log.Warnf("node %q has %d default edges, using the first (handle %q)",
				nodeID, defaults, chosen.SourceHandle)
		}
		return chosen.Target
	}

	log.Warnf("no applicable edge from %q (type %q) with trigger %q", nodeID, sourceType, trigger)
	return ""
}

// edgeByHandle returns the target of the first edge from nodeID carrying
// exactly the given sourceHandle, "" when absent. Condition nodes use it to
// follow their true/false branches.
func edgeByHandle(f *flow.Flow, nodeID, handle string) string {
	for _, e := range f.Outgoing(nodeID) {
		if e.SourceHandle == handle {
			return e.Target
		}
	}
	return ""
}
