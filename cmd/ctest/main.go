// Command ctest compiles every castro test file in process and compares the
// script and the diagnostics against a JSON golden file kept next to it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/errael/castro/pkg/compiler"
	"github.com/errael/castro/pkg/config"
	"github.com/google/go-cmp/cmp"
)

var (
	testFiles  = flag.String("test-files", "testdata/*.castro", "Glob pattern(s) for files to test (space-separated)")
	skipFiles  = flag.String("skip", "", "Space-separated list of files to skip")
	update     = flag.Bool("update", false, "Rewrite the golden files from the current compiler")
	outputJSON = flag.String("output", ".test_results.json", "Output file for the JSON test report")
	jobs       = flag.Int("j", 4, "Number of parallel test jobs")
	verbose    = flag.Bool("v", false, "Enable verbose output")
	useCache   = flag.Bool("cached", true, "Skip files whose source and golden hashes match a previous passing run")
)

const (
	cRed    = "\033[31m"
	cYellow = "\033[33m"
	cGreen  = "\033[32m"
	cCyan   = "\033[36m"
	cBold   = "\033[1m"
	cNone   = "\033[0m"
)

// flagsDirective is an optional first line that applies -W/-F flags to one file.
const flagsDirective = "// flags:"

// Golden is the recorded result of compiling one source file.
type Golden struct {
	Output      []string `json:"output"`
	Diagnostics []string `json:"diagnostics"`
	Internal    string   `json:"internal,omitempty"`
}

type FileTestResult struct {
	File     string        `json:"file"`
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Diff     string        `json:"diff,omitempty"`
	Hash     string        `json:"hash,omitempty"`
	Duration time.Duration `json:"duration"`
}

type TestSuiteResults map[string]*FileTestResult

func main() {
	flag.Parse()
	log.SetFlags(0)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	if *update {
		for _, file := range files {
			handleGenerateGolden(file)
		}
		return
	}
	handleRunTestSuite(files)
}

func goldenPath(sourceFile string) string {
	return strings.TrimSuffix(sourceFile, filepath.Ext(sourceFile)) + ".golden"
}

// hashFiles computes one xxhash over the content of every path, in order.
func hashFiles(paths ...string) (string, error) {
	h := xxhash.New()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// compileFile runs the compiler on one file with a colorless configuration
// so that diagnostics are stable text.
func compileFile(file string) (*Golden, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	src := string(content)

	cfg := config.NewConfig()
	if first, _, _ := strings.Cut(src, "\n"); strings.HasPrefix(first, flagsDirective) {
		cfg.ProcessDirectiveFlags(strings.TrimPrefix(first, flagsDirective))
	}
	cfg.Color = false

	u, lines, err := compiler.Compile(cfg, compiler.Source{Name: filepath.Base(file), Content: src})
	g := &Golden{Output: lines, Diagnostics: []string{}}
	if g.Output == nil {
		g.Output = []string{}
	}
	for _, d := range u.Diag.Diagnostics() {
		g.Diagnostics = append(g.Diagnostics, strings.Split(strings.TrimRight(u.Diag.Format(d), "\n"), "\n")...)
	}
	if err != nil {
		g.Internal = err.Error()
	}
	return g, nil
}

func handleGenerateGolden(sourceFile string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)
	g, err := compileFile(sourceFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not compile %s: %v\n", cRed, cNone, sourceFile, err)
	}
	jsonData, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}
	goldenFile := goldenPath(sourceFile)
	if err := os.WriteFile(goldenFile, append(jsonData, '\n'), 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFile, err)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFile)
}

func handleRunTestSuite(files []string) {
	previousResults := make(TestSuiteResults)
	if prevData, err := os.ReadFile(*outputJSON); err == nil {
		if json.Unmarshal(prevData, &previousResults) != nil {
			log.Printf("%s[WARN]%s Could not parse previous results file %s. Cache will not be used.\n", cYellow, cNone, *outputJSON)
			previousResults = make(TestSuiteResults)
		}
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[filepath.Base(f)] = true
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(file, previousResults)
			}
		}()
	}

	for _, file := range files {
		if skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)
	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(file string, previousResults TestSuiteResults) *FileTestResult {
	goldenFile := goldenPath(file)
	if _, err := os.Stat(goldenFile); err != nil {
		return &FileTestResult{File: file, Status: "SKIP", Message: "No golden file; run with --update to create one"}
	}
	hash, err := hashFiles(file, goldenFile)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to hash files: %v", err)}
	}
	if prev, ok := previousResults[file]; *useCache && ok && prev.Status == "PASS" && prev.Hash == hash {
		return &FileTestResult{File: file, Status: "PASS", Message: "Unchanged since last passing run (cached)", Hash: hash}
	}

	goldenData, err := os.ReadFile(goldenFile)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file: %v", err)}
	}
	var want Golden
	if err := json.Unmarshal(goldenData, &want); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file: %v", err)}
	}

	start := time.Now()
	got, err := compileFile(file)
	elapsed := time.Since(start)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}

	if diff := cmp.Diff(&want, got); diff != "" {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Output does not match golden file", Diff: diff, Duration: elapsed}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "Matches golden file", Hash: hash, Duration: elapsed}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var total time.Duration

	for _, result := range results {
		total += result.Duration
		if !*verbose && result.Status == "PASS" {
			passed++
			continue
		}
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)
		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s (%s)\n", cGreen, cNone, result.Message, formatDuration(result.Duration))
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sSummary:%s %s%d passed%s, %s%d failed%s, %s%d skipped%s, %s%d errors%s, %d total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if *verbose {
		fmt.Printf("Compile time: %s\n", formatDuration(total))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}
	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}
	if err := os.WriteFile(*outputJSON, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
	} else if *verbose {
		fmt.Printf("Full test report saved to %s\n", *outputJSON)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			if seen[file] {
				continue
			}
			if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
				allFiles = append(allFiles, file)
				seen[file] = true
			}
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}
