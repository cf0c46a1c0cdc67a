// Command preflight-lock validates a project's domain configuration and
// guards against two orchestrator runs operating on the same worktree
// concurrently, before any database session exists (SPEC_FULL.md §6).
//
// --validate checks wave-config.json for structural problems, --lock/--check
// manage a project-wide flock-based lock file, --report prints the
// configured domains, and --audit walks the project tree classifying every
// file's owning domain via pkg/worktree's BoundaryEnforcer.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/domainconfig"
	"github.com/wavehq/orchestrator/pkg/worktree"
)

const lockFileName = ".wave-preflight.lock"

func main() {
	validate := flag.Bool("validate", false, "check wave-config.json for structural problems")
	lock := flag.Bool("lock", false, "acquire the project-wide preflight lock")
	check := flag.Bool("check", false, "report whether the preflight lock is currently held")
	report := flag.Bool("report", false, "print the configured domains and their patterns")
	audit := flag.Bool("audit", false, "classify every project file by owning domain")
	projectPath := flag.String("project", ".", "path to the project root")
	flag.Parse()

	configPath := filepath.Join(*projectPath, "wave-config.json")

	switch {
	case *validate:
		os.Exit(doValidate(configPath))
	case *lock:
		os.Exit(doLock(*projectPath))
	case *check:
		os.Exit(doCheck(*projectPath))
	case *report:
		os.Exit(doReport(configPath))
	case *audit:
		os.Exit(doAudit(*projectPath, configPath))
	default:
		fmt.Fprintln(os.Stderr, "preflight-lock: one of --validate/--lock/--check/--report/--audit is required")
		os.Exit(2)
	}
}

func doValidate(configPath string) int {
	rules, err := domainconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight-lock: %v\n", err)
		return 1
	}

	var problems []string
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			problems = append(problems, "a domain has an empty id")
			continue
		}
		if seen[r.ID] {
			problems = append(problems, fmt.Sprintf("domain %q is declared more than once", r.ID))
		}
		seen[r.ID] = true
		if len(r.FilePatterns) == 0 {
			problems = append(problems, fmt.Sprintf("domain %q has no file_patterns", r.ID))
		}
	}
	if !seen[domain.SharedDomainID] {
		fmt.Printf("warning: no %q domain declared — files outside every domain's patterns will be unowned\n", domain.SharedDomainID)
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "preflight-lock: %s\n", p)
		}
		return 1
	}
	fmt.Printf("wave-config.json is valid (%d domains)\n", len(rules))
	return 0
}

// doLock acquires an exclusive, non-blocking flock on a lock file under
// project so a second preflight or orchestrator invocation against the
// same worktree fails fast instead of racing on file ownership.
func doLock(project string) int {
	path := filepath.Join(project, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight-lock: opening lock file: %v\n", err)
		return 1
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		fmt.Printf("project %s is already locked\n", project)
		return 1
	}

	pid := fmt.Sprintf("%d\n", os.Getpid())
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(pid), 0)

	fmt.Printf("project %s locked (pid %d, lock file %s)\n", project, os.Getpid(), path)
	// Intentionally leak the fd: releasing it here would drop the flock
	// immediately. The lock is held for this process's lifetime and is
	// released by the kernel when it exits.
	return 0
}

func doCheck(project string) int {
	path := filepath.Join(project, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight-lock: opening lock file: %v\n", err)
		return 1
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	locked := err != nil
	if !locked {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}
	fmt.Printf("project %s locked=%v\n", project, locked)
	return 0
}

func doReport(configPath string) int {
	rules, err := domainconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight-lock: %v\n", err)
		return 1
	}
	fmt.Printf("%d domains configured in %s\n", len(rules), configPath)
	for _, r := range rules {
		fmt.Printf("  %-16s %-24s %s\n", r.ID, r.Name, strings.Join(r.FilePatterns, ", "))
	}
	return 0
}

// doAudit classifies every regular file under project against each
// configured domain's patterns, surfacing files owned by zero or by more
// than one non-shared domain — both indicate a wave-config.json that will
// let BoundaryEnforcer.CheckAccess produce surprising decisions at runtime.
func doAudit(project, configPath string) int {
	rules, err := domainconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight-lock: %v\n", err)
		return 1
	}

	var files []string
	err = filepath.Walk(project, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if name == ".git" || name == "_examples" || name == "vendor" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(project, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight-lock: walking project: %v\n", err)
		return 1
	}
	sort.Strings(files)

	unowned := 0
	multiOwned := 0
	for _, f := range files {
		owners := ownersOf(rules, f)
		switch {
		case len(owners) == 0:
			unowned++
			fmt.Printf("  unowned: %s\n", f)
		case len(owners) > 1 && !contains(owners, domain.SharedDomainID):
			multiOwned++
			fmt.Printf("  multi-owned (%s): %s\n", strings.Join(owners, ", "), f)
		}
	}

	fmt.Printf("audited %d files across %d domains: %d unowned, %d multi-owned\n", len(files), len(rules), unowned, multiOwned)
	if unowned > 0 || multiOwned > 0 {
		return 1
	}
	return 0
}

func ownersOf(rules []domain.DomainRule, path string) []string {
	var owners []string
	for _, r := range rules {
		for _, pattern := range r.FilePatterns {
			if worktree.MatchGlob(pattern, path) {
				owners = append(owners, r.ID)
				break
			}
		}
	}
	return owners
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
