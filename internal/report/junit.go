// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report parses and aggregates JUnit XML test result files
// into a single run summary.
package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// Suite is one parsed JUnit test suite.
type Suite struct {
	Name     string  `json:"name"`
	Tests    int     `json:"tests"`
	Failures int     `json:"failures"`
	Errors   int     `json:"errors"`
	Skipped  int     `json:"skipped"`
	Time     float64 `json:"time"`
	Cases    []Case  `json:"cases,omitempty"`
}

// Case is one test case within a suite.
type Case struct {
	Name      string  `json:"name"`
	ClassName string  `json:"classname,omitempty"`
	Time      float64 `json:"time"`
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
}

// Case status values.
const (
	CasePassed  = "passed"
	CaseFailed  = "failed"
	CaseError   = "error"
	CaseSkipped = "skipped"
)

// xmlTestSuites matches the <testsuites> wrapper element.
type xmlTestSuites struct {
	XMLName xml.Name       `xml:"testsuites"`
	Suites  []xmlTestSuite `xml:"testsuite"`
}

type xmlTestSuite struct {
	Name     string        `xml:"name,attr"`
	Tests    string        `xml:"tests,attr"`
	Failures string        `xml:"failures,attr"`
	Errors   string        `xml:"errors,attr"`
	Skipped  string        `xml:"skipped,attr"`
	Time     string        `xml:"time,attr"`
	Cases    []xmlTestCase `xml:"testcase"`
}

type xmlTestCase struct {
	Name      string      `xml:"name,attr"`
	ClassName string      `xml:"classname,attr"`
	Time      string      `xml:"time,attr"`
	Failure   *xmlOutcome `xml:"failure"`
	Error     *xmlOutcome `xml:"error"`
	Skipped   *xmlOutcome `xml:"skipped"`
}

type xmlOutcome struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// Parse reads JUnit XML from r. Both a bare <testsuite> root and the
// <testsuites> wrapper are accepted; pytest emits the wrapper.
func Parse(r io.Reader) ([]Suite, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	var wrapper xmlTestSuites
	if err := xml.Unmarshal(data, &wrapper); err == nil && len(wrapper.Suites) > 0 {
		return convertSuites(wrapper.Suites), nil
	}

	var single xmlTestSuite
	if err := xml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parsing junit xml: %w", err)
	}
	return convertSuites([]xmlTestSuite{single}), nil
}

// ParseFile parses a JUnit XML file.
func ParseFile(path string) ([]Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	suites, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suites, nil
}

func convertSuites(in []xmlTestSuite) []Suite {
	out := make([]Suite, 0, len(in))
	for _, s := range in {
		suite := Suite{
			Name:     s.Name,
			Tests:    atoi(s.Tests),
			Failures: atoi(s.Failures),
			Errors:   atoi(s.Errors),
			Skipped:  atoi(s.Skipped),
			Time:     atof(s.Time),
		}
		for _, c := range s.Cases {
			tc := Case{
				Name:      c.Name,
				ClassName: c.ClassName,
				Time:      atof(c.Time),
				Status:    CasePassed,
			}
			switch {
			case c.Error != nil:
				tc.Status = CaseError
				tc.Message = outcomeMessage(c.Error)
			case c.Failure != nil:
				tc.Status = CaseFailed
				tc.Message = outcomeMessage(c.Failure)
			case c.Skipped != nil:
				tc.Status = CaseSkipped
				tc.Message = outcomeMessage(c.Skipped)
			}
			suite.Cases = append(suite.Cases, tc)
		}
		out = append(out, suite)
	}
	return out
}

func outcomeMessage(o *xmlOutcome) string {
	if o.Message != "" {
		return o.Message
	}
	return o.Body
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Summary is the aggregate of all suites across all test jobs.
type Summary struct {
	Suites   []Suite `json:"suites"`
	Tests    int     `json:"tests"`
	Failures int     `json:"failures"`
	Errors   int     `json:"errors"`
	Skipped  int     `json:"skipped"`
	Passed   int     `json:"passed"`
	Time     float64 `json:"time"`
}

// Failed reports whether any case failed or errored.
func (s *Summary) Failed() bool {
	return s.Failures > 0 || s.Errors > 0
}

// Merge aggregates suites into a summary. Suites are ordered by name
// for stable output.
func Merge(suites []Suite) *Summary {
	summary := &Summary{Suites: suites}
	for _, suite := range suites {
		summary.Tests += suite.Tests
		summary.Failures += suite.Failures
		summary.Errors += suite.Errors
		summary.Skipped += suite.Skipped
		summary.Time += suite.Time
	}
	summary.Passed = summary.Tests - summary.Failures - summary.Errors - summary.Skipped
	sort.SliceStable(summary.Suites, func(i, j int) bool {
		return summary.Suites[i].Name < summary.Suites[j].Name
	})
	return summary
}

// FailedCases returns the failed and errored cases across all suites.
func (s *Summary) FailedCases() []Case {
	var failed []Case
	for _, suite := range s.Suites {
		for _, c := range suite.Cases {
			if c.Status == CaseFailed || c.Status == CaseError {
				failed = append(failed, c)
			}
		}
	}
	return failed
}
