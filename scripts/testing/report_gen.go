// report_gen merges `go test -json` output with the annotation block above
// each test function (TestPurpose, Scope, Security, Expected, Test Case ID)
// and writes JSON and Markdown reports.
//
//	go test -json ./... > test.json
//	go run ./scripts/testing -input test.json -out-json report.json -out-md report.md
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const modulePath = "github.com/opentrusty/farmgate/"

// TestMetadata holds the annotation block of one test function
type TestMetadata struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

// GoTestEvent is one line of `go test -json`
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// TestResult is the merged outcome of a single test
type TestResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

// ReportSummary holds top-level counts
type ReportSummary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Results     []TestResult `json:"results"`
}

var annotationKeys = []string{"TestPurpose:", "Scope:", "Security:", "Expected:", "Test Case ID:"}

// categoryOrder is the section order in the Markdown report
var categoryOrder = []string{"AuthZ", "Grants", "RBAC", "Tenant", "Identity", "Storage", "HTTP API", "Platform", "Other"}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Test Report", "Report title")
	category := flag.String("category", "", "Only include this category")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	meta, err := scanMetadata(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}
	results, err := parseTestOutput(*inputPath, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse failed: %v\n", err)
		os.Exit(1)
	}
	if *category != "" {
		kept := results[:0]
		for _, r := range results {
			if strings.EqualFold(r.Annotations.Category, *category) {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	summary := summarize(results)
	if err := saveJSON(summary, *outputJSON); err != nil {
		fmt.Fprintf(os.Stderr, "write json: %v\n", err)
		os.Exit(1)
	}
	if err := saveMarkdown(summary, *outputMD, *title); err != nil {
		fmt.Fprintf(os.Stderr, "write markdown: %v\n", err)
		os.Exit(1)
	}

	// Fail CI when any test failed.
	if summary.Failed > 0 {
		fmt.Printf("%d tests failed\n", summary.Failed)
		os.Exit(1)
	}
}

func scanMetadata(root string) (map[string]TestMetadata, error) {
	out := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}
		pkg := packagePath(path)

		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") || fn.Doc == nil {
				continue
			}
			m := TestMetadata{Name: fn.Name.Name, Package: pkg, Category: categoryFor(pkg)}
			for _, c := range fn.Doc.List {
				text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
				for _, key := range annotationKeys {
					if v, ok := strings.CutPrefix(text, key); ok {
						setAnnotation(&m, key, strings.TrimSpace(v))
					}
				}
			}
			out[pkg+"."+fn.Name.Name] = m
		}
		return nil
	})
	return out, err
}

func setAnnotation(m *TestMetadata, key, value string) {
	switch key {
	case "TestPurpose:":
		m.Purpose = value
	case "Scope:":
		m.Scope = value
	case "Security:":
		m.Security = value
	case "Expected:":
		m.Expected = value
	case "Test Case ID:":
		m.TestCaseID = value
	}
}

func packagePath(file string) string {
	dir := filepath.ToSlash(filepath.Dir(file))
	dir = strings.TrimPrefix(dir, "./")
	if dir == "." {
		return strings.TrimSuffix(modulePath, "/")
	}
	return modulePath + dir
}

func categoryFor(pkg string) string {
	rel := strings.TrimPrefix(pkg, modulePath)
	switch {
	case strings.HasPrefix(rel, "internal/authz"), strings.HasPrefix(rel, "internal/requestctx"):
		return "AuthZ"
	case strings.HasPrefix(rel, "internal/grant"):
		return "Grants"
	case strings.HasPrefix(rel, "internal/rbac"):
		return "RBAC"
	case strings.HasPrefix(rel, "internal/tenant"):
		return "Tenant"
	case strings.HasPrefix(rel, "internal/identity"):
		return "Identity"
	case strings.HasPrefix(rel, "internal/store"):
		return "Storage"
	case strings.HasPrefix(rel, "internal/transport"):
		return "HTTP API"
	case strings.HasPrefix(rel, "internal/config"), strings.HasPrefix(rel, "internal/observability"),
		strings.HasPrefix(rel, "internal/audit"), strings.HasPrefix(rel, "internal/id"):
		return "Platform"
	default:
		return "Other"
	}
}

func parseTestOutput(path string, meta map[string]TestMetadata) ([]TestResult, error) {
	states := make(map[string]*TestResult, len(meta))
	for key, m := range meta {
		states[key] = &TestResult{Name: m.Name, Package: m.Package, Status: "not run", Annotations: m}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev GoTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Test == "" {
			continue
		}

		key := ev.Package + "." + ev.Test
		res, ok := states[key]
		if !ok {
			m := TestMetadata{Name: ev.Test, Package: ev.Package, Category: categoryFor(ev.Package)}
			// Subtests inherit their parent's annotations.
			if parent, _, isSub := strings.Cut(ev.Test, "/"); isSub {
				if pm, found := meta[ev.Package+"."+parent]; found {
					m = pm
					m.Name = ev.Test
				}
			}
			res = &TestResult{Name: ev.Test, Package: ev.Package, Annotations: m}
			states[key] = res
		}

		switch ev.Action {
		case "pass", "fail":
			res.Status = ev.Action
			res.Elapsed = ev.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status != "pass" {
				res.Failure += ev.Output
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	list := make([]TestResult, 0, len(states))
	for _, r := range states {
		if r.Status != "fail" {
			r.Failure = ""
		}
		list = append(list, *r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Package != list[j].Package {
			return list[i].Package < list[j].Package
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func summarize(results []TestResult) ReportSummary {
	s := ReportSummary{GeneratedAt: time.Now(), Results: results}
	for _, r := range results {
		s.Total++
		switch r.Status {
		case "pass":
			s.Passed++
		case "fail":
			s.Failed++
		case "skip":
			s.Skipped++
		}
	}
	return s
}

func saveJSON(summary ReportSummary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func saveMarkdown(summary ReportSummary, path, title string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# farmgate %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	status := "PASSED"
	if summary.Failed > 0 {
		status = "FAILED"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)

	rate := 0.0
	if summary.Total > 0 {
		rate = float64(summary.Passed) / float64(summary.Total) * 100
	}
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %.1f%% |\n\n", summary.Total, summary.Passed, summary.Failed, summary.Skipped, rate)

	byCategory := make(map[string][]TestResult)
	for _, r := range summary.Results {
		byCategory[r.Annotations.Category] = append(byCategory[r.Annotations.Category], r)
	}

	for _, cat := range categoryOrder {
		tests := byCategory[cat]
		if len(tests) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", cat)
		sb.WriteString("| ID | Test | Status | Purpose | Security |\n")
		sb.WriteString("|----|------|--------|---------|----------|\n")
		for _, t := range tests {
			fmt.Fprintf(&sb, "| %s | `%s` | %s | %s | %s |\n",
				t.Annotations.TestCaseID, t.Name, t.Status, cell(t.Annotations.Purpose), cell(t.Annotations.Security))
		}
		sb.WriteString("\n")
	}

	var failed []TestResult
	for _, r := range summary.Results {
		if r.Status == "fail" {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		sb.WriteString("## Failures\n\n")
		for _, t := range failed {
			fmt.Fprintf(&sb, "### %s.%s\n\n```\n%s```\n\n", t.Package, t.Name, t.Failure)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
