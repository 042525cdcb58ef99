//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package flow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/flow-controller/log"
	"trpc.group/trpc-go/flow-controller/storage/mysql"
)

// loadActiveFlowSQL selects the single flow marked active. If several rows
// qualify the first one wins.
const loadActiveFlowSQL = "SELECT id, name, elements FROM flows WHERE status = 'active' LIMIT 1"

// Loader fetches the active flow row from the relational store and decodes
// it into a Flow. A failed load never disturbs the previously loaded flow;
// callers only swap the registry on success.
type Loader struct {
	client mysql.ClientInterface
}

// NewLoader creates a flow loader over the given mysql client.
func NewLoader(client mysql.ClientInterface) *Loader {
	return &Loader{client: client}
}

// LoadActive reads the active flow row and builds its in-memory model.
func (l *Loader) LoadActive(ctx context.Context) (*Flow, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("flow: store client is not configured")
	}

	var (
		id       int64
		name     string
		elements []byte
	)
	row := l.client.QueryRowContext(ctx, loadActiveFlowSQL)
	if err := row.Scan(&id, &name, &elements); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("flow: no active flow in store")
		}
		return nil, fmt.Errorf("flow: query active flow: %w", err)
	}
	log.Infof("flow: active flow found: id=%d name=%q", id, name)

	f, err := DecodeElements(id, name, elements)
	if err != nil {
		return nil, err
	}
	log.Infof("flow: loaded %q (id=%d), %d nodes, start node %q",
		name, id, f.NodeCount(), f.StartNodeID())
	return f, nil
}

// DecodeElements decodes a stored elements JSON document
// ({"nodes":[...],"edges":[...]}) into a Flow.
func DecodeElements(id int64, name string, elements []byte) (*Flow, error) {
	var doc struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []*Edge           `json:"edges"`
	}
	if err := json.Unmarshal(elements, &doc); err != nil {
		return nil, fmt.Errorf("flow %d (%s): decode elements: %w", id, name, err)
	}

	nodes := make([]*Node, 0, len(doc.Nodes))
	for _, raw := range doc.Nodes {
		n, err := decodeNode(raw)
		if err != nil {
			log.Warnf("flow %d: skipping malformed node: %v", id, err)
			continue
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}

	return New(id, name, nodes, doc.Edges)
}

// decodeNode converts one stored node object into the typed Node model.
// Recognized data keys depend on the node type; everything stays available
// through the raw Data map.
func decodeNode(raw json.RawMessage) (*Node, error) {
	var stored struct {
		ID   string         `json:"id"`
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if stored.ID == "" {
		// Mirrors the store contract: nodes without an id are dropped.
		return nil, nil
	}

	n := &Node{
		ID:   stored.ID,
		Type: NodeType(stored.Type),
		Data: stored.Data,
	}

	switch n.Type {
	case NodeTypeText, NodeTypeEnd:
		n.Text = optString(stored.Data, "text")
	case NodeTypeWaitInput:
		n.Message = optString(stored.Data, "message")
		n.VariableName = optString(stored.Data, "variableName")
	case NodeTypeSetVariable:
		n.VariableName = optString(stored.Data, "variableName")
		n.Value = optString(stored.Data, "value")
	case NodeTypeCondition:
		n.VariableName = optString(stored.Data, "variableName")
		n.Value = optString(stored.Data, "value")
		if c := optString(stored.Data, "comparison"); c != nil {
			n.Comparison = *c
		}
	case NodeTypeGPTQuery:
		n.GPT = decodeGPTParams(stored.ID, stored.Data)
	}
	return n, nil
}

func decodeGPTParams(nodeID string, data map[string]any) *GPTParams {
	p := &GPTParams{}
	if v := optString(data, "prompt"); v != nil {
		p.Prompt = *v
	}
	if v := optString(data, "systemMessage"); v != nil {
		p.SystemMessage = *v
	}
	if v := optString(data, "apiKeyVariable"); v != nil {
		p.APIKeyVariable = *v
	}
	if v := optString(data, "saveResponseTo"); v != nil {
		p.SaveResponseTo = *v
	}

	// model/temperature/maxTokens are loosely typed in stored flows;
	// invalid values are dropped at load time with a warning rather than
	// forwarded to the AI service.
	if v, ok := data["model"]; ok && v != nil {
		if s, ok := v.(string); ok {
			p.Model = s
		} else {
			log.Warnf("flow: node %q: model is not a string, dropping", nodeID)
		}
	}
	if v, ok := data["temperature"]; ok && v != nil {
		if f, ok := v.(float64); ok {
			p.Temperature = &f
		} else {
			log.Warnf("flow: node %q: temperature is not a number, dropping", nodeID)
		}
	}
	if v, ok := data["maxTokens"]; ok && v != nil {
		if f, ok := v.(float64); ok {
			tokens := int(f)
			p.MaxTokens = &tokens
		} else {
			log.Warnf("flow: node %q: maxTokens is not a number, dropping", nodeID)
		}
	}
	return p
}

// optString extracts a data value as string, nil when absent or null.
// Non-string scalars are stringified, variable values are strings throughout
// the engine.
func optString(data map[string]any, key string) *string {
	v, ok := data[key]
	if !ok || v == nil {
		return nil
	}
	s := stringify(v)
	return &s
}
