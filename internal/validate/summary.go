package validate

import (
	"regexp"
	"strconv"

	"github.com/ankittk/benchrun/pkg/models"
)

// summaryRe matches the build tool's test summary line anywhere in combined
// stdout/stderr, e.g. "Total tests: 42, passed: 40, failed: 2".
var summaryRe = regexp.MustCompile(`Total tests: (\d+), passed: (\d+), failed: (\d+)`)

// ExtractSummary pulls the pass/fail breakdown out of free-form tool output.
// Absence of a match means the tool produced output the extractor does not
// recognize; that is not an error, so the summary is simply nil.
func ExtractSummary(output string) *models.TestSummary {
	m := summaryRe.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	total, _ := strconv.Atoi(m[1])
	passed, _ := strconv.Atoi(m[2])
	failed, _ := strconv.Atoi(m[3])
	return &models.TestSummary{Total: total, Passed: passed, Failed: failed}
}
