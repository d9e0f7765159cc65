package domain

import (
	"fmt"
	"strings"
)

// PlanningError is a graph or cost-model failure during plan
// computation. Timeout marks a plan request that exceeded its deadline.
type PlanningError struct {
	Reason  string
	Timeout bool
	Err     error
}

func (e *PlanningError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = "planning failed"
	}
	if e.Timeout {
		msg = msg + " (timed out)"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ConnectivityError marks a broken or unreachable execution stream.
type ConnectivityError struct {
	Reason string
	Err    error
}

func (e *ConnectivityError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = "stream unreachable"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProducerError records one job's failure. It is non-fatal to the
// overall run by itself; the executor's terminal verdict decides the
// run outcome.
type ProducerError struct {
	Producer string
	Message  string
}

func (e *ProducerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("producer %q failed", e.Producer)
	}
	return fmt.Sprintf("producer %q failed: %s", e.Producer, e.Message)
}

// ValidationError aggregates range and command validation issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
