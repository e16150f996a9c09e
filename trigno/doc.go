// Copyright (c) jupacheco1407.
// Licensed under the MIT License.

// Package trigno bridges a Trigno-style sensor base to the sampling worker.
//
// A Base owns the application's frame handler. A sampling run borrows the
// handler slot through Intercept, feeding frames into the run's accumulator,
// and always restores it when the run ends:
//
//	base, err := trigno.DialFromEnv(ctx, trigno.WithChannels(2))
//	if err != nil {
//		return err
//	}
//	defer base.Close()
//	base.SetHandler(app.OnFrame)
//
//	src, err := trigno.NewSource(base)
//	if err != nil {
//		return err
//	}
//	w, err := sampling.NewWorker(src)
//	if err != nil {
//		return err
//	}
//	if err := w.Start(ctx); err != nil {
//		return err
//	}
//	for ev := range w.Events() {
//		...
//	}
package trigno
