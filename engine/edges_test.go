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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/flow-controller/flow"
)

func resolverFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f, err := flow.New(1, "resolver", []*flow.Node{
		{ID: "wait", Type: flow.NodeTypeWaitInput},
		{ID: "byHandle", Type: flow.NodeTypeText, Text: strPtr("h")},
		{ID: "received", Type: flow.NodeTypeText, Text: strPtr("r")},
		{ID: "onError", Type: flow.NodeTypeText, Text: strPtr("e")},
		{ID: "fallback", Type: flow.NodeTypeText, Text: strPtr("d")},
	}, []*flow.Edge{
		{Source: "wait", Target: "byHandle", SourceHandle: "opt-1"},
		{Source: "wait", Target: "received", SourceHandle: flow.HandleReceived},
		{Source: "wait", Target: "onError", SourceHandle: flow.HandleError},
		{Source: "wait", Target: "fallback"},
	})
	require.NoError(t, err)
	return f
}

func TestNextEdgePriority(t *testing.T) {
	f := resolverFlow(t)

	tests := []struct {
		name       string
		trigger    string
		sourceType flow.NodeType
		want       string
	}{
		{"exact handle match wins", "opt-1", flow.NodeTypeWaitInput, "byHandle"},
		{"unmatched input from waitInput uses source-received", "foo", flow.NodeTypeWaitInput, "received"},
		{"unmatched input elsewhere falls to default", "foo", flow.NodeTypeText, "fallback"},
		{"error trigger uses source-error", TriggerError, flow.NodeTypeGPTQuery, "onError"},
		{"transition uses default", TriggerTransition, flow.NodeTypeText, "fallback"},
		{"start flow uses default", TriggerStartFlow, flow.NodeTypeStart, "fallback"},
		{"empty input from waitInput uses source-received", "", flow.NodeTypeWaitInput, "received"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextEdge(f, "wait", tt.trigger, tt.sourceType))
		})
	}
}

func TestNextEdgeNoApplicableEdge(t *testing.T) {
	f, err := flow.New(1, "bare", []*flow.Node{
		{ID: "a", Type: flow.NodeTypeText, Text: strPtr("x")},
		{ID: "b", Type: flow.NodeTypeText, Text: strPtr("y")},
	}, []*flow.Edge{
		{Source: "a", Target: "b", SourceHandle: "only-this"},
	})
	require.NoError(t, err)

	assert.Equal(t, "", nextEdge(f, "a", TriggerTransition, flow.NodeTypeText))
	assert.Equal(t, "", nextEdge(f, "b", TriggerTransition, flow.NodeTypeText))
}

func TestNextEdgeFirstDefaultWins(t *testing.T) {
	f, err := flow.New(1, "multi", []*flow.Node{
		{ID: "a", Type: flow.NodeTypeText, Text: strPtr("x")},
		{ID: "b", Type: flow.NodeTypeText, Text: strPtr("y")},
		{ID: "c", Type: flow.NodeTypeText, Text: strPtr("z")},
	}, []*flow.Edge{
		{Source: "a", Target: "b", SourceHandle: "source-bottom"},
		{Source: "a", Target: "c", SourceHandle: "source"},
	})
	require.NoError(t, err)

	assert.Equal(t, "b", nextEdge(f, "a", TriggerTransition, flow.NodeTypeText))
}

func TestEdgeByHandle(t *testing.T) {
	f := resolverFlow(t)
	assert.Equal(t, "onError", edgeByHandle(f, "wait", flow.HandleError))
	assert.Equal(t, "", edgeByHandle(f, "wait", flow.HandleTrue))
	assert.Equal(t, "", edgeByHandle(f, "missing", flow.HandleTrue))
}

func TestShouldEmitOnEntry(t *testing.T) {
	tests := []struct {
		name    string
		typ     flow.NodeType
		trigger string
		hop     int
		want    bool
	}{
		{"start flow always emits", flow.NodeTypeStart, TriggerStartFlow, 3, true},
		{"first hop message node", flow.NodeTypeText, "hello", 1, true},
		{"first hop silent node", flow.NodeTypeSetVariable, "hello", 1, false},
		{"later hop message node", flow.NodeTypeText, TriggerTransition, 2, false},
		{"landing on waitInput", flow.NodeTypeWaitInput, TriggerTransition, 4, true},
		{"landing on button", flow.NodeTypeButton, TriggerTransition, 4, true},
		{"landing on condition", flow.NodeTypeCondition, TriggerTransition, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldEmitOnEntry(tt.typ, tt.trigger, tt.hop))
		})
	}
}

func TestPayloadForNode(t *testing.T) {
	vars := map[string]string{"name": "Ana"}

	p := payloadForNode(&flow.Node{ID: "t", Type: flow.NodeTypeText, Text: strPtr("oi {{name}}")}, vars)
	require.NotNil(t, p)
	assert.Equal(t, Payload{Type: "text", Text: "oi Ana"}, *p)

	p = payloadForNode(&flow.Node{ID: "w", Type: flow.NodeTypeWaitInput, Message: strPtr("nome?")}, vars)
	require.NotNil(t, p)
	assert.Equal(t, "nome?", p.Text)

	p = payloadForNode(&flow.Node{ID: "e", Type: flow.NodeTypeEnd, Text: strPtr("tchau")}, vars)
	require.NotNil(t, p)
	assert.Equal(t, "tchau", p.Text)

	// Empty expanded text still produces a payload.
	p = payloadForNode(&flow.Node{ID: "t2", Type: flow.NodeTypeText, Text: strPtr("")}, vars)
	require.NotNil(t, p)
	assert.Equal(t, "", p.Text)

	// Missing content yields no payload.
	assert.Nil(t, payloadForNode(&flow.Node{ID: "t3", Type: flow.NodeTypeText}, vars))
	assert.Nil(t, payloadForNode(&flow.Node{ID: "w2", Type: flow.NodeTypeWaitInput}, vars))

	// Kinds without a generator.
	assert.Nil(t, payloadForNode(&flow.Node{ID: "b", Type: flow.NodeTypeButton}, vars))
	assert.Nil(t, payloadForNode(&flow.Node{ID: "i", Type: flow.NodeTypeImage}, vars))
}
