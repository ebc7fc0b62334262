// Package randomize drives domain randomization from a resolved
// task.randomization_params subtree. It turns the subtree into validated
// rules, then schedules per-rule resampling across a simulated-step counter:
// setup-only rules freeze after their first draw, everything else resamples
// on the configured cadence. The simulator applies the resulting overrides;
// this package never touches simulation state itself.
package randomize
