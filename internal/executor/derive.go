package executor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Custos/imthedev-sub000/internal/orchestration"
)

// Output line patterns recognized while streaming.
var (
	// FileCreatedPattern matches "Created: <path>" and "Creating <path>".
	FileCreatedPattern = regexp.MustCompile(`(?:Created:|Creating\b:?)\s*(\S.*)`)
	// FileModifiedPattern matches "Modified: <path>" and "Updating <path>".
	FileModifiedPattern = regexp.MustCompile(`(?:Modified:|Updating\b:?)\s*(\S.*)`)
	// lineCountsPattern reads an optional "(+A -R ~M)" suffix on a modified path.
	lineCountsPattern = regexp.MustCompile(`\s*\(\+(\d+)\s+-(\d+)(?:\s+~(\d+))?\)$`)

	// TestCountsPattern matches "N passed ... M failed ... K skipped".
	TestCountsPattern = regexp.MustCompile(`(\d+)\s*passed.*?(\d+)\s*failed.*?(\d+)\s*skipped`)
	// TestRatioPattern matches "Tests: P/T passing (C%)".
	TestRatioPattern = regexp.MustCompile(`Tests?:\s*(\d+)/(\d+)\s*passing\s*\(?([\d.]+)%`)

	// ProgressPattern matches "Progress: N% - message".
	ProgressPattern = regexp.MustCompile(`Progress:\s*([\d.]+)%\s*-?\s*(.+)`)
	// BracketProgressPattern matches "[N%] message".
	BracketProgressPattern = regexp.MustCompile(`\[([\d.]+)%\]\s*(.+)`)
)

// FileChange describes a file touched by the running command.
type FileChange struct {
	Path          string
	LinesAdded    int
	LinesRemoved  int
	LinesModified int
}

// Progress is a parsed progress line.
type Progress struct {
	Message    string
	Percentage float64
	Operation  string
}

// Derived holds the structured facts found in one output line. Nil fields
// mean the line did not carry that kind of information.
type Derived struct {
	Created  *FileChange
	Modified *FileChange
	Tests    *orchestration.TestResults
	Progress *Progress
}

// Empty reports whether nothing was derived.
func (d Derived) Empty() bool {
	return d.Created == nil && d.Modified == nil && d.Tests == nil && d.Progress == nil
}

// DeriveLine extracts file, test and progress information from a single
// output line. The line should already be free of ANSI sequences.
func DeriveLine(line string) Derived {
	var d Derived

	if strings.Contains(line, "Created:") || strings.Contains(line, "Creating") {
		if m := FileCreatedPattern.FindStringSubmatch(line); m != nil {
			d.Created = &FileChange{Path: strings.TrimSpace(m[1])}
		}
	}

	if strings.Contains(line, "Modified:") || strings.Contains(line, "Updating") {
		if m := FileModifiedPattern.FindStringSubmatch(line); m != nil {
			d.Modified = parseModified(strings.TrimSpace(m[1]))
		}
	}

	d.Tests = parseTestSummary(line)
	d.Progress = parseProgress(line)
	return d
}

func parseModified(rest string) *FileChange {
	change := &FileChange{Path: rest}
	loc := lineCountsPattern.FindStringSubmatchIndex(rest)
	if loc == nil {
		return change
	}

	change.Path = strings.TrimSpace(rest[:loc[0]])
	change.LinesAdded = atoi(rest[loc[2]:loc[3]])
	change.LinesRemoved = atoi(rest[loc[4]:loc[5]])
	if loc[6] >= 0 {
		change.LinesModified = atoi(rest[loc[6]:loc[7]])
	}
	return change
}

func parseTestSummary(line string) *orchestration.TestResults {
	if m := TestCountsPattern.FindStringSubmatch(line); m != nil {
		return &orchestration.TestResults{
			Passed:  atoi(m[1]),
			Failed:  atoi(m[2]),
			Skipped: atoi(m[3]),
		}
	}

	if m := TestRatioPattern.FindStringSubmatch(line); m != nil {
		passed, total := atoi(m[1]), atoi(m[2])
		coverage, _ := strconv.ParseFloat(m[3], 64)
		failed := total - passed
		if failed < 0 {
			failed = 0
		}
		return &orchestration.TestResults{
			Passed:   passed,
			Failed:   failed,
			Coverage: coverage,
		}
	}
	return nil
}

func parseProgress(line string) *Progress {
	for _, re := range []*regexp.Regexp{ProgressPattern, BracketProgressPattern} {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return &Progress{
			Message:    line,
			Percentage: pct,
			Operation:  strings.TrimSpace(m[2]),
		}
	}
	return nil
}

// atoi parses a run of digits matched by a pattern; overflow yields 0.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
