// Copyright (C) The SPRA Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spra

import (
	"sync"
	"sync/atomic"
)

// throttle runs funcs on a bounded number of goroutines, keeping the
// first reported error.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

// Go starts f on its own goroutine once a slot is free. A non-nil
// return from f becomes the throttle's error unless one was already
// recorded.
func (t *throttle) Go(f func() error) {
	t.setupOnce.Do(func() { t.ch = make(chan bool, t.Max) })
	t.wg.Add(1)
	t.ch <- true
	go func() {
		defer func() {
			<-t.ch
			t.wg.Done()
		}()
		if err := f(); err != nil {
			t.errorOnce.Do(func() { t.err.Store(err) })
		}
	}()
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

// Wait blocks until all started funcs have returned.
func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}
