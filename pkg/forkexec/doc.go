// Package forkexec starts a child process with an explicit fd mapping,
// optionally stopped for a ptrace tracer at its execve.
//
// Failures in the child between clone and execve are reported back to the
// parent as a ChildError over a close-on-exec socket pair.
//
// dup3 requires kernel >= 2.6.27, close_range with CLOSE_RANGE_CLOEXEC
// kernel >= 5.11 (older kernels silently skip it).
package forkexec
