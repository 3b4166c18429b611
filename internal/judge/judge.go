// internal/judge/judge.go
package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrUnavailable wraps any failure talking to the judge backend.
var ErrUnavailable = errors.New("judge unavailable")

// Challenge is one problem of the catalogue with its hidden test cases.
type Challenge struct {
	Title   string   `json:"title"`
	Level   int      `json:"level"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Submission is a member's code for the current challenge.
type Submission struct {
	Script       string `json:"script"`
	Language     string `json:"language"`
	VersionIndex int    `json:"versionIndex"`
}

// Empty reports whether the member gave up without writing anything.
func (s Submission) Empty() bool {
	return strings.TrimSpace(s.Script) == ""
}

// Execution is the outcome of running a submission against one input.
type Execution struct {
	Output     string `json:"output"`
	StatusCode string `json:"statusCode"`
	Memory     string `json:"memory"`
	CPUTime    string `json:"cpuTime"`
}

// Executor runs a submission against a single stdin.
type Executor interface {
	Execute(ctx context.Context, sub Submission, input string) (Execution, error)
}

// Verdict summarizes a graded submission.
type Verdict struct {
	Solved bool `json:"solved"`
	// Last is the execution of the final test case, shown to the submitter.
	Last Execution `json:"result"`
}

// Grade executes every test case concurrently and reports solved iff each
// normalized output equals the expected one. A challenge without test cases
// cannot be graded. Any execution error aborts the
// whole grade.
func Grade(ctx context.Context, ex Executor, ch Challenge, sub Submission) (Verdict, error) {
	if len(ch.Inputs) == 0 {
		return Verdict{}, fmt.Errorf("%w: challenge %q has no test cases", ErrUnavailable, ch.Title)
	}
	if len(ch.Inputs) != len(ch.Outputs) {
		return Verdict{}, fmt.Errorf("challenge %q has %d inputs but %d outputs", ch.Title, len(ch.Inputs), len(ch.Outputs))
	}
	results := make([]Execution, len(ch.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range ch.Inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := ex.Execute(gctx, sub, in)
			if err != nil {
				return fmt.Errorf("test case %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Verdict{}, err
	}

	v := Verdict{Solved: true}
	for i, res := range results {
		if normalize(res.Output) != normalize(ch.Outputs[i]) {
			v.Solved = false
		}
	}
	if n := len(results); n > 0 {
		v.Last = results[n-1]
	}
	return v, nil
}

// normalize drops every line break, so multi-line output matches a catalogue
// answer stored on one line.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}
