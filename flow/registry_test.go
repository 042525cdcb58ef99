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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Current())

	f1, err := New(1, "first", []*Node{{ID: "a", Type: NodeTypeText}}, nil)
	require.NoError(t, err)
	f2, err := New(2, "second", []*Node{{ID: "b", Type: NodeTypeText}}, nil)
	require.NoError(t, err)

	assert.Nil(t, r.Swap(f1))
	assert.Same(t, f1, r.Current())
	assert.Same(t, f1, r.Swap(f2))
	assert.Same(t, f2, r.Current())
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := NewRegistry()
	f1, err := New(1, "first", []*Node{{ID: "a", Type: NodeTypeText}}, nil)
	require.NoError(t, err)
	f2, err := New(2, "second", []*Node{{ID: "b", Type: NodeTypeText}}, nil)
	require.NoError(t, err)
	r.Swap(f1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				// A reader sees either snapshot whole, never a mix.
				f := r.Current()
				if f != f1 && f != f2 {
					t.Error("observed unknown flow snapshot")
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		r.Swap(f1)
		r.Swap(f2)
	}
	wg.Wait()
	assert.Same(t, f2, r.Current())
}
