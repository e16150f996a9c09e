// Copyright (c) jupacheco1407.
// Licensed under the MIT License.

// Package sampling measures the maximum amplitude produced by a data source
// over a short, fixed sampling window.
//
// A Worker is a one-shot background task. It is given a Source, started once,
// and reports a stream of Progress events followed by exactly one Completion
// on its Events channel:
//
//	w, err := sampling.NewWorker(sampling.NewSyntheticSource())
//	if err != nil {
//		return err
//	}
//	if err := w.Start(ctx); err != nil {
//		return err
//	}
//	for ev := range w.Events() {
//		switch ev := ev.(type) {
//		case sampling.Progress:
//			bar.Set(ev.Step, ev.Total)
//		case sampling.Completion:
//			fmt.Println(ev.Maxima)
//		}
//	}
//
// Stop is cooperative: the worker notices it at the next iteration boundary
// and still emits a Completion carrying the maxima accumulated so far.
package sampling
