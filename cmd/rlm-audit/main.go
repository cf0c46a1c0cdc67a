// Command rlm-audit periodically scopes every configured domain against a
// project's Go import graph and reports native/shared file counts plus the
// active rate-limit and budget settings (SPEC_FULL.md §6's RLM auditor).
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/domainconfig"
	"github.com/wavehq/orchestrator/pkg/rlm"
	"github.com/wavehq/orchestrator/pkg/rlmconfig"
	"github.com/wavehq/orchestrator/pkg/worktree"
)

const moduleRoot = "github.com/wavehq/orchestrator"

func main() {
	projectPath := flag.String("project", ".", "path to the project to audit")
	interval := flag.Duration("interval", 5*time.Minute, "time between audit passes")
	once := flag.Bool("once", false, "run a single pass and exit (for scripting)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	domainConfigPath := filepath.Join(*projectPath, "wave-config.json")
	rlmConfigPath := filepath.Join(*projectPath, "config", "rlm.json")

	for {
		if err := runAudit(*projectPath, domainConfigPath, rlmConfigPath, logger); err != nil {
			fmt.Fprintf(os.Stderr, "rlm-audit: %v\n", err)
			os.Exit(1)
		}
		if *once {
			return
		}
		time.Sleep(*interval)
	}
}

func runAudit(projectPath, domainConfigPath, rlmConfigPath string, logger *zap.Logger) error {
	rules, err := domainconfig.Load(domainConfigPath)
	if err != nil {
		return fmt.Errorf("loading domain config: %w", err)
	}
	rlmCfg, err := rlmconfig.Load(rlmConfigPath)
	if err != nil {
		return fmt.Errorf("loading rlm config: %w", err)
	}

	files, err := listGoFiles(projectPath)
	if err != nil {
		return fmt.Errorf("walking project: %w", err)
	}
	graph := buildImportGraph(projectPath, files)

	nativeByDomain := make(map[string][]string, len(rules))
	for _, rule := range rules {
		nativeByDomain[rule.ID] = nativeFilesFor(rule, files)
	}
	shared := rlm.ComputeSharedFiles(nativeByDomain, graph)

	scoper := rlm.NewDomainScoper()
	fmt.Printf("rlm-audit: %s (%d go files, %d domains)\n", projectPath, len(files), len(rules))
	fmt.Printf("  rate limits: %d req/min, %d tok/min\n", rlmCfg.RateLimits.RequestsPerMinute, rlmCfg.RateLimits.TokensPerMinute)
	fmt.Printf("  budget: $%.2f/day, alert at %.0f%%\n", rlmCfg.Budget.DailyLimitUSD, rlmCfg.Budget.AlertFraction*100)

	for _, rule := range rules {
		scoped := scoper.Scope(rule.ID, nativeByDomain[rule.ID], graph, shared)
		sharedCount := 0
		for _, f := range scoped {
			if f.IsShared {
				sharedCount++
			}
		}
		fmt.Printf("  domain %-16s native=%-4d reachable=%-4d shared=%d\n", rule.ID, len(nativeByDomain[rule.ID]), len(scoped), sharedCount)
	}

	logger.Info("rlm audit pass complete", zap.Int("domains", len(rules)), zap.Int("files", len(files)))
	return nil
}

func listGoFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "_examples" || info.Name() == ".git" || info.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// buildImportGraph maps each file to every file in the packages it
// imports (restricted to this module's own import paths — third-party and
// stdlib imports contribute no edges).
func buildImportGraph(root string, files []string) rlm.ImportGraph {
	filesByDir := make(map[string][]string)
	for _, f := range files {
		dir := filepath.ToSlash(filepath.Dir(f))
		filesByDir[dir] = append(filesByDir[dir], f)
	}

	graph := make(rlm.ImportGraph, len(files))
	fset := token.NewFileSet()
	for _, f := range files {
		node, err := parser.ParseFile(fset, filepath.Join(root, f), nil, parser.ImportsOnly)
		if err != nil {
			continue
		}
		var edges []string
		for _, imp := range node.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(path, moduleRoot) {
				continue
			}
			dir := strings.TrimPrefix(path, moduleRoot+"/")
			edges = append(edges, filesByDir[dir]...)
		}
		graph[f] = edges
	}
	return graph
}

func nativeFilesFor(rule domain.DomainRule, files []string) []string {
	var native []string
	for _, f := range files {
		if f == rule.ID {
			continue
		}
		if matchesRule(rule, f) {
			native = append(native, f)
		}
	}
	return native
}

func matchesRule(rule domain.DomainRule, path string) bool {
	for _, pattern := range rule.FilePatterns {
		if worktree.MatchGlob(pattern, path) {
			return true
		}
	}
	return false
}
