// Copyright (c) jupacheco1407.
// Licensed under the MIT License.

// Package internal holds helpers shared by the sampling and sensor packages.
package internal

import "iter"

// Apply yields the options of type T from opts followed by rest, skipping
// nil values and options of other types.
func Apply[T, O any](opts []O, rest ...O) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, list := range [...][]O{opts, rest} {
			for _, opt := range list {
				op, ok := any(opt).(T)
				if !ok || any(op) == nil {
					continue
				}
				if !yield(op) {
					return
				}
			}
		}
	}
}
