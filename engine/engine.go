//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package engine implements the flow execution engine: one inbound trigger
// advances a sender's session through the flow graph until the session rests
// at a user-waiting node or terminates, emitting at most one outbound
// payload per request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/flow-controller/aiquery"
	"trpc.group/trpc-go/flow-controller/flow"
	"trpc.group/trpc-go/flow-controller/log"
	"trpc.group/trpc-go/flow-controller/session"
	atrace "trpc.group/trpc-go/flow-controller/telemetry/trace"
)

// Internal trigger sentinels. Any other trigger value is an external user
// input (message text or an interaction identifier).
const (
	// TriggerStartFlow marks the bootstrap step of a brand new session.
	TriggerStartFlow = "_internal_start_flow_"
	// TriggerTransition marks a hop produced by the engine itself.
	TriggerTransition = "_internal_transition_"
	// TriggerError routes a failed node through its error edge.
	TriggerError = "_internal_error_"
)

// maxHops bounds one request's traversal; it protects against cycles.
const maxHops = 15

// User-facing error strings. The wording surfaces to end users and is kept
// verbatim from the deployed service.
const (
	msgUnavailable   = "Desculpe, o sistema está temporariamente indisponível."
	msgInternalError = "Erro interno no fluxo."
	msgGenericError  = "Erro."
)

// errNodeMisconfigured is stored when a gptQuery node lacks required data.
const errNodeMisconfigured = "ERRO_CONFIG_IA: Nó de IA mal configurado."

// Payload is the outbound message handed back to the messaging gateway.
type Payload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textPayload(text string) *Payload {
	return &Payload{Type: "text", Text: text}
}

// Engine drives sessions through the loaded flow. It is safe for concurrent
// use: the flow registry hands out immutable snapshots and the session
// service serializes per sender.
type Engine struct {
	registry *flow.Registry
	loader   *flow.Loader
	sessions session.Service
	ai       *aiquery.Client
}

// New creates an execution engine. A nil AI client degrades into the
// not-configured sentinel on every gptQuery node.
func New(registry *flow.Registry, loader *flow.Loader, sessions session.Service, ai *aiquery.Client) *Engine {
	if registry == nil {
		registry = flow.NewRegistry()
	}
	if ai == nil {
		ai = aiquery.NewClient("")
	}
	return &Engine{
		registry: registry,
		loader:   loader,
		sessions: sessions,
		ai:       ai,
	}
}

// FlowLoaded reports whether a valid flow is currently loaded.
func (e *Engine) FlowLoaded() bool {
	return e.registry.Current() != nil
}

// CurrentFlow returns the loaded flow snapshot, nil when none.
func (e *Engine) CurrentFlow() *flow.Flow {
	return e.registry.Current()
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	return e.sessions.Count()
}

// ReloadFlow loads the active flow from the store and installs it. When the
// flow id changed (including from none), every session is purged; reloading
// the same flow keeps sessions intact. On failure the previous flow stays in
// effect.
func (e *Engine) ReloadFlow(ctx context.Context) (*flow.Flow, error) {
	ctx, span := atrace.Tracer.Start(ctx, atrace.SpanReloadFlow)
	defer span.End()

	if e.loader == nil {
		return nil, errors.New("engine: no flow loader configured")
	}
	f, err := e.loader.LoadActive(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("flow.id", f.ID()))

	prev := e.registry.Swap(f)
	if prev == nil || prev.ID() != f.ID() {
		purged := e.sessions.Clear()
		log.Infof("engine: flow changed to id=%d, purged %d sessions", f.ID(), purged)
	} else {
		log.Infof("engine: flow id=%d reloaded, sessions kept", f.ID())
	}
	return f, nil
}

// refreshFlow is the lazy load path used when no flow is available at
// request time. Unlike ReloadFlow it never purges sessions.
func (e *Engine) refreshFlow(ctx context.Context) (*flow.Flow, error) {
	if e.loader == nil {
		return nil, errors.New("engine: no flow loader configured")
	}
	f, err := e.loader.LoadActive(ctx)
	if err != nil {
		return nil, err
	}
	e.registry.Swap(f)
	log.Info("engine: flow loaded during message processing")
	return f, nil
}

// ProcessMessage advances the sender's session by one inbound trigger and
// returns the outbound payload, nil when the step produced none. It never
// returns an error: every failure maps to a payload or to silence.
func (e *Engine) ProcessMessage(ctx context.Context, senderID, message string) *Payload {
	ctx, span := atrace.Tracer.Start(ctx, atrace.SpanProcessMessage)
	defer span.End()
	span.SetAttributes(attribute.String("flow.sender_id", senderID))

	invocationID := uuid.NewString()

	f := e.registry.Current()
	if f == nil {
		var err error
		if f, err = e.refreshFlow(ctx); err != nil {
			log.Errorf("engine[%s]: no flow available: %v", invocationID, err)
			return textPayload(msgUnavailable)
		}
	}
	span.SetAttributes(attribute.Int64("flow.id", f.ID()))

	unlock := e.sessions.LockSender(senderID)
	defer unlock()

	sess, exists := e.sessions.Get(senderID)
	trigger := message
	if !exists {
		sess = session.New(senderID, f.StartNodeID())
		e.sessions.Save(sess)
		trigger = TriggerStartFlow
		log.Infof("engine[%s]: new session for %q at start node %q",
			invocationID, senderID, sess.CurrentNodeID)
	} else {
		sess.History = append(sess.History, session.HistoryEntry{
			NodeBeforeInput: sess.CurrentNodeID,
			TriggerReceived: trigger,
		})
		log.Infof("engine[%s]: session for %q at node %q, trigger %q",
			invocationID, senderID, sess.CurrentNodeID, trigger)
	}

	return e.run(ctx, f, sess, trigger, invocationID)
}

// run executes the bounded traversal loop for one inbound trigger.
func (e *Engine) run(ctx context.Context, f *flow.Flow, sess *session.Session,
	trigger, invocationID string) *Payload {
	activeID := sess.CurrentNodeID
	vars := sess.Variables

	var payload *Payload
	finalNodeID := activeID
	capped := true

	for hop := 1; hop <= maxHops; hop++ {
		node, ok := f.Node(activeID)
		if !ok {
			log.Errorf("engine[%s]: hop %d: node %q not found, resetting session",
				invocationID, hop, activeID)
			e.sessions.Delete(sess.SenderID)
			return textPayload(msgInternalError)
		}
		log.Debugf("engine[%s]: hop %d/%d node=%q type=%q trigger=%q",
			invocationID, hop, maxHops, activeID, node.Type, trigger)

		if payload == nil && shouldEmitOnEntry(node.Type, trigger, hop) {
			payload = payloadForNode(node, vars)
		}

		var next string
		stop := false

		switch node.Type {
		case flow.NodeTypeWaitInput:
			if isInternalTrigger(trigger) {
				// Arrived here by traversal: rest and wait for the user.
				finalNodeID = activeID
				stop = true
			} else {
				varName := "lastInput"
				if node.VariableName != nil && *node.VariableName != "" {
					varName = *node.VariableName
				}
				vars[varName] = trigger
				log.Infof("engine[%s]: waitInput stored input in %q", invocationID, varName)
				next = nextEdge(f, activeID, trigger, node.Type)
				trigger = TriggerTransition
			}

		case flow.NodeTypeSetVariable:
			if node.VariableName != nil {
				name := strings.TrimSpace(flow.Substitute(*node.VariableName, vars))
				value := ""
				if node.Value != nil {
					value = *node.Value
				}
				vars[name] = flow.Substitute(value, vars)
				log.Infof("engine[%s]: setVariable %q", invocationID, name)
			}
			next = nextEdge(f, activeID, TriggerTransition, node.Type)
			trigger = TriggerTransition

		case flow.NodeTypeGPTQuery:
			if failed := e.runGPTQuery(ctx, node, vars, invocationID); failed {
				next = nextEdge(f, activeID, TriggerError, node.Type)
				if next == "" {
					next = nextEdge(f, activeID, TriggerTransition, node.Type)
				}
			} else {
				next = nextEdge(f, activeID, TriggerTransition, node.Type)
			}
			trigger = TriggerTransition

		case flow.NodeTypeCondition:
			handle := flow.HandleFalse
			if flow.EvaluateCondition(node, trigger, vars) {
				handle = flow.HandleTrue
			}
			next = edgeByHandle(f, activeID, handle)
			if next == "" {
				log.Warnf("engine[%s]: condition node %q has no edge for handle %q",
					invocationID, activeID, handle)
			}
			trigger = TriggerTransition

		case flow.NodeTypeEnd:
			log.Infof("engine[%s]: endFlow node %q reached", invocationID, activeID)
			finalNodeID = ""
			stop = true

		case flow.NodeTypeStart:
			next = nextEdge(f, activeID, TriggerTransition, node.Type)
			trigger = TriggerTransition

		default:
			if node.Type.IsMessageSending() {
				if node.Type.IsInteractive() && trigger != TriggerTransition {
					// Interaction id (or bootstrap) at a button/list node:
					// route by the trigger's handle; when nothing matches
					// the session rests here waiting for a choice.
					next = nextEdge(f, activeID, trigger, node.Type)
					trigger = TriggerTransition
				} else {
					next = nextEdge(f, activeID, TriggerTransition, node.Type)
					trigger = TriggerTransition
					if next == "" {
						finalNodeID = ""
						stop = true
					}
				}
			} else {
				log.Warnf("engine[%s]: unhandled node type %q (node %q), trying default edge",
					invocationID, node.Type, activeID)
				next = nextEdge(f, activeID, TriggerTransition, node.Type)
				trigger = TriggerTransition
				if next == "" {
					finalNodeID = ""
					stop = true
				}
			}
		}

		if stop {
			capped = false
			break
		}

		if next != "" {
			activeID = next
			sess.History = append(sess.History, session.HistoryEntry{
				TransitionedTo: next,
				ViaTrigger:     trigger,
			})
			// A single inbound may traverse silent nodes and still deliver
			// the next outbound message.
			if payload == nil {
				if nextNode, ok := f.Node(next); ok && nextNode.Type.IsMessageSending() {
					payload = payloadForNode(nextNode, vars)
				}
			}
			continue
		}

		// No transition from this node.
		if node.Type.IsWaiting() {
			finalNodeID = activeID
		} else {
			finalNodeID = ""
		}
		capped = false
		break
	}

	if capped {
		log.Errorf("engine[%s]: hop cap (%d) reached, ending session", invocationID, maxHops)
		payload = textPayload(msgGenericError)
		finalNodeID = ""
	}

	if finalNodeID != "" {
		sess.CurrentNodeID = finalNodeID
		e.sessions.Save(sess)
		log.Infof("engine[%s]: session %q now waiting at %q",
			invocationID, sess.SenderID, finalNodeID)
	} else {
		e.sessions.Delete(sess.SenderID)
		log.Infof("engine[%s]: flow finished for %q, session removed",
			invocationID, sess.SenderID)
	}
	return payload
}

// runGPTQuery performs the AI call of a gptQuery node, recording the result
// (or a sentinel error) into the configured variable. It reports whether the
// error edge should be preferred.
func (e *Engine) runGPTQuery(ctx context.Context, node *flow.Node,
	vars map[string]string, invocationID string) (failed bool) {
	ctx, span := atrace.Tracer.Start(ctx, atrace.SpanAIQuery)
	defer span.End()

	p := node.GPT
	if p == nil || p.Prompt == "" || p.SaveResponseTo == "" || p.APIKeyVariable == "" {
		log.Errorf("engine[%s]: gptQuery node %q misconfigured", invocationID, node.ID)
		target := "gpt_error"
		if p != nil && p.SaveResponseTo != "" {
			target = p.SaveResponseTo
		}
		vars[target] = errNodeMisconfigured
		return true
	}

	apiKey := vars[p.APIKeyVariable]
	if apiKey == "" {
		log.Errorf("engine[%s]: gptQuery node %q: API key variable %q not set",
			invocationID, node.ID, p.APIKeyVariable)
		vars[p.SaveResponseTo] = fmt.Sprintf("ERRO_IA: API Key '%s' não definida.", p.APIKeyVariable)
		return true
	}

	value, ok := e.ai.Query(ctx, aiquery.Request{
		Prompt:        flow.Substitute(p.Prompt, vars),
		APIKey:        apiKey,
		SystemMessage: flow.Substitute(p.SystemMessage, vars),
		Model:         p.Model,
		Temperature:   p.Temperature,
		MaxTokens:     p.MaxTokens,
	})
	vars[p.SaveResponseTo] = value
	if ok {
		log.Infof("engine[%s]: gptQuery node %q response saved to %q",
			invocationID, node.ID, p.SaveResponseTo)
	}
	return !ok
}

// shouldEmitOnEntry decides whether the current node's payload is captured
// before it is dispatched: on session bootstrap, on the first hop of any
// message-sending node, and when traversal lands the session on a
// user-waiting node.
func shouldEmitOnEntry(t flow.NodeType, trigger string, hop int) bool {
	if trigger == TriggerStartFlow {
		return true
	}
	if hop == 1 && t.IsMessageSending() {
		return true
	}
	return trigger == TriggerTransition && t.IsWaiting()
}

func isInternalTrigger(trigger string) bool {
	return trigger == TriggerStartFlow ||
		trigger == TriggerTransition ||
		trigger == TriggerError
}
