//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package flow

import "sync/atomic"

// Registry holds the currently loaded flow snapshot. Readers always observe
// either the entirely-old or entirely-new flow; requests in flight during a
// swap finish against the snapshot they started with.
type Registry struct {
	current atomic.Pointer[Flow]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the loaded flow, nil when none has been loaded yet.
func (r *Registry) Current() *Flow {
	return r.current.Load()
}

// Swap installs a new flow snapshot and returns the previous one.
func (r *Registry) Swap(f *Flow) *Flow {
	return r.current.Swap(f)
}
