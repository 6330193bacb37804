package forkexec

import "golang.org/x/sys/unix"

// ExecFailureStatus is the exit status of a child that failed before or at execve
const ExecFailureStatus = 127

// execve is retried on ETXTBSY, a just written executable may still be
// open for writing in a sibling that forked meanwhile
const etxtbsyRetries = 50

var etxtbsyRetryInterval = unix.Timespec{Nsec: 1000 * 1000}
