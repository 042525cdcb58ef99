//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package flow provides the in-memory conversational flow model: nodes,
// edges, start-node resolution, template substitution and condition
// evaluation. A Flow is immutable once built; reloads swap whole snapshots
// through the Registry.
package flow

import (
	"fmt"
	"strconv"

	"trpc.group/trpc-go/flow-controller/log"
)

// NodeType represents the type of a node in the flow graph.
type NodeType string

const (
	// NodeTypeStart represents the explicit entry node of the flow.
	NodeTypeStart NodeType = "startNode"
	// NodeTypeText represents a node that sends a text message.
	NodeTypeText NodeType = "textMessage"
	// NodeTypeImage represents a node that sends an image message.
	NodeTypeImage NodeType = "imageMessage"
	// NodeTypeAudio represents a node that sends an audio message.
	NodeTypeAudio NodeType = "audioMessage"
	// NodeTypeVideo represents a node that sends a video message.
	NodeTypeVideo NodeType = "videoMessage"
	// NodeTypeFile represents a node that sends a file message.
	NodeTypeFile NodeType = "fileMessage"
	// NodeTypeLocation represents a node that sends a location message.
	NodeTypeLocation NodeType = "locationMessage"
	// NodeTypeButton represents an interactive button message node.
	NodeTypeButton NodeType = "buttonMessage"
	// NodeTypeList represents an interactive list message node.
	NodeTypeList NodeType = "listMessage"
	// NodeTypeWaitInput represents a node that waits for user input.
	NodeTypeWaitInput NodeType = "waitInput"
	// NodeTypeSetVariable represents a node that assigns a flow variable.
	NodeTypeSetVariable NodeType = "setVariable"
	// NodeTypeGPTQuery represents a node that queries the AI service.
	NodeTypeGPTQuery NodeType = "gptQuery"
	// NodeTypeCondition represents a conditional branching node.
	NodeTypeCondition NodeType = "condition"
	// NodeTypeEnd represents a terminal node of the flow.
	NodeTypeEnd NodeType = "endFlow"
)

// Named output handles that are part of the external flow contract.
const (
	// HandleReceived is followed by waitInput nodes after external input.
	HandleReceived = "source-received"
	// HandleError is followed when a node fails internally.
	HandleError = "source-error"
	// HandleTrue is followed by condition nodes evaluating to true.
	HandleTrue = "source-true"
	// HandleFalse is followed by condition nodes evaluating to false.
	HandleFalse = "source-false"
)

// defaultHandles are the handle labels that mark an edge as the default exit
// of a node. An empty sourceHandle qualifies as well.
var defaultHandles = map[string]bool{
	"":               true,
	"source":         true,
	"source-bottom":  true,
	"source-default": true,
	"source-success": true,
}

// IsDefaultHandle reports whether the handle label marks a default edge.
func IsDefaultHandle(handle string) bool {
	return defaultHandles[handle]
}

// IsMessageSending reports whether nodes of this type deliver an outbound
// message when entered (including the waitInput prompt and endFlow text).
func (t NodeType) IsMessageSending() bool {
	switch t {
	case NodeTypeText, NodeTypeImage, NodeTypeAudio, NodeTypeVideo,
		NodeTypeFile, NodeTypeLocation, NodeTypeButton, NodeTypeList,
		NodeTypeWaitInput, NodeTypeEnd:
		return true
	}
	return false
}

// IsInteractive reports whether nodes of this type offer interaction choices
// whose identifiers come back as the next trigger.
func (t NodeType) IsInteractive() bool {
	return t == NodeTypeButton || t == NodeTypeList
}

// IsWaiting reports whether a session may legally rest at nodes of this type
// between inbound messages.
func (t NodeType) IsWaiting() bool {
	return t == NodeTypeWaitInput || t == NodeTypeButton || t == NodeTypeList
}

// GPTParams carries the AI query parameters of a gptQuery node.
// Prompt, APIKeyVariable and SaveResponseTo are required for the node to be
// well configured; the engine records a sentinel error when any is missing.
type GPTParams struct {
	Prompt         string
	SystemMessage  string
	APIKeyVariable string
	SaveResponseTo string
	Model          string
	Temperature    *float64
	MaxTokens      *int
}

// Node is a vertex of the flow graph. The recognized data keys of the stored
// JSON are decoded into typed fields at load time; Data keeps the raw map so
// unknown node types stay representable.
type Node struct {
	// ID is the node identifier, unique within the flow.
	ID string
	// Type is the kind tag of the node.
	Type NodeType
	// Text is the outbound text of textMessage and endFlow nodes.
	// nil means the node produces no payload.
	Text *string
	// Message is the prompt of waitInput nodes. nil means no prompt is sent.
	Message *string
	// VariableName names the variable read or written by waitInput,
	// setVariable and condition nodes.
	VariableName *string
	// Value is the raw (unexpanded) value template of setVariable and
	// condition nodes.
	Value *string
	// Comparison is the comparison operator of condition nodes.
	Comparison string
	// GPT holds the AI parameters of gptQuery nodes.
	GPT *GPTParams
	// Data is the raw data map as stored.
	Data map[string]any
}

// Edge is a directed connection between two nodes, optionally labeled with
// the source handle it leaves from.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Flow is the immutable in-memory representation of one stored flow row.
type Flow struct {
	id       int64
	name     string
	nodes    map[string]*Node
	edges    []*Edge
	outgoing map[string][]*Edge
	startID  string
}

// New builds a Flow from an ordered node list and an ordered edge list,
// resolving the start node:
//  1. an explicit startNode wins;
//  2. otherwise the first listed node that is no edge target;
//  3. otherwise the first node in the list, with a warning.
//
// Edge insertion order is preserved in the adjacency index, the edge
// resolver relies on it.
func New(id int64, name string, nodes []*Node, edges []*Edge) (*Flow, error) {
	nodeMap := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		nodeMap[n.ID] = n
	}
	if len(nodeMap) == 0 {
		return nil, fmt.Errorf("flow %d (%s): node list is empty", id, name)
	}

	outgoing := make(map[string][]*Edge, len(nodeMap))
	targets := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e == nil || e.Source == "" || e.Target == "" {
			continue
		}
		outgoing[e.Source] = append(outgoing[e.Source], e)
		targets[e.Target] = true
	}

	startID := resolveStartNode(nodes, nodeMap, targets)
	if startID == "" {
		return nil, fmt.Errorf("flow %d (%s): start node could not be determined", id, name)
	}
	if _, ok := nodeMap[startID]; !ok {
		return nil, fmt.Errorf("flow %d (%s): start node %q not present in node map", id, name, startID)
	}

	return &Flow{
		id:       id,
		name:     name,
		nodes:    nodeMap,
		edges:    edges,
		outgoing: outgoing,
		startID:  startID,
	}, nil
}

func resolveStartNode(nodes []*Node, nodeMap map[string]*Node, targets map[string]bool) string {
	for _, n := range nodes {
		if n != nil && n.Type == NodeTypeStart {
			log.Infof("flow: explicit start node %q", n.ID)
			return n.ID
		}
	}
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if !targets[n.ID] {
			log.Infof("flow: inferred start node %q (no incoming edges)", n.ID)
			return n.ID
		}
	}
	for _, n := range nodes {
		if n != nil && n.ID != "" {
			log.Warnf("flow: no clear start node, using first listed node %q", n.ID)
			return n.ID
		}
	}
	return ""
}

// ID returns the flow identifier from the store.
func (f *Flow) ID() int64 { return f.id }

// Name returns the human name of the flow.
func (f *Flow) Name() string { return f.name }

// StartNodeID returns the resolved start node identifier.
func (f *Flow) StartNodeID() string { return f.startID }

// Node returns a node by ID.
func (f *Flow) Node(id string) (*Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Outgoing returns the outgoing edges of a node in stored order.
func (f *Flow) Outgoing(nodeID string) []*Edge {
	return f.outgoing[nodeID]
}

// NodeCount returns the number of nodes in the flow.
func (f *Flow) NodeCount() int { return len(f.nodes) }

// stringify renders a decoded JSON value the way the variable store expects:
// plain strings stay as-is, numbers drop the float artifacts of JSON
// decoding, everything else goes through fmt.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
