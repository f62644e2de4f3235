// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "time"

// SenseEvery calls sense every interval and sends each successful reading on
// the returned channel until stop is closed. Failed readings are skipped.
//
// The channel is closed when the goroutine exits.
func SenseEvery[E any](interval time.Duration, stop <-chan struct{}, sense func(*E) error) <-chan E {
	ch := make(chan E, 16)
	go func() {
		defer close(ch)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				var e E
				if err := sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				case <-stop:
					return
				}
			}
		}
	}()
	return ch
}
