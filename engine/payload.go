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

// payloadForNode builds the outbound payload a node delivers when entered,
// with template variables expanded. Nodes without payload content (and kinds
// without a generator, such as media and interactive messages) yield nil,
// which the API surfaces as a response without payload.
func payloadForNode(n *flow.Node, vars map[string]string) *Payload {
	switch n.Type {
	case flow.NodeTypeText, flow.NodeTypeEnd:
		if n.Text == nil {
			log.Warnf("node %q (type %q) has no text for its payload", n.ID, n.Type)
			return nil
		}
		return textPayload(flow.Substitute(*n.Text, vars))
	case flow.NodeTypeWaitInput:
		if n.Message == nil {
			log.Warnf("waitInput node %q has no prompt message", n.ID)
			return nil
		}
		return textPayload(flow.Substitute(*n.Message, vars))
	}
	// TODO: generators for media and interactive kinds once the gateway
	// defines their payload shapes.
	return nil
}
