// Package scheduler provides voxnote's in-process timer scheduler.
//
// # Overview
//
// The scheduler owns timer identity, lifecycle, and cancellation. Callers
// register repeating timers (CreateInterval), one-shot timers (CreateTimeout),
// or one of the higher-level task shapes built on top of them:
//
//   - CreateRecurringTask: an interval with default error/completion logging.
//   - CreateDelayedTask: a one-shot whose failure is caught and logged.
//   - CreateRetryTask: bounded attempts on a fixed period; stops on the first
//     success or after exhausting the attempt budget, firing exactly one of
//     the success/failure callbacks.
//   - CreateCronTask: a recurring task driven by a cron expression.
//
// # Identity and self-cancellation
//
// Every timer is addressed by an opaque TimerID issued at registration. The
// ID is passed into the timer's own execute callback, so a callback can
// cancel its timer mid-tick without closing over a not-yet-assigned handle.
//
// # Ticks and overlap
//
// Each timer owns a single dispatch goroutine that runs its callback to
// completion before taking the next tick, so two ticks of the same timer
// never overlap; a callback that outlives its period causes intervening
// ticks to coalesce into at most one pending tick. Ticks of different timers
// are independent. A tick already dispatched when cancellation lands observes
// the cleared active flag and does nothing.
//
// # Errors
//
// A callback error is routed to the timer's OnError handler (or a default
// log line). It never propagates to the scheduler's caller and never stops
// the timer by itself. Cancelling an unknown or wrong-kind handle returns
// false rather than an error, since callers may race with the natural
// completion of a one-shot.
package scheduler
