package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hillu/go-yara/v4"
)

// scanTimeout bounds one ScanMem call; classification runs inside the
// enclosing distribution timeout, so this is a hard backstop, not the
// primary budget.
const scanTimeout = 10 * time.Second

// yaraScanner is the narrow surface classify depends on, satisfied by
// *yara.Rules in production and a fake in tests.
type yaraScanner interface {
	ScanMem(buf []byte, flags yara.ScanFlags, timeout time.Duration) ([]yara.MatchRule, error)
}

// CompileRules builds a YARA ruleset from a single rule file, a directory
// of rule files, or (via a caller-resolved local path) a downloaded bundle.
// Directory members are compiled under a namespace derived from their
// filename so identically-named rules across files don't collide.
func CompileRules(path string) (*yara.Rules, error) {
	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("yara compiler: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("yara_rules %q: %w", path, err)
	}

	if !info.IsDir() {
		if err := addRuleFile(compiler, path, ""); err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("yara_rules dir %q: %w", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			namespace := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if err := addRuleFile(compiler, filepath.Join(path, entry.Name()), namespace); err != nil {
				return nil, err
			}
		}
	}

	rules, err := compiler.GetRules()
	if err != nil {
		return nil, fmt.Errorf("yara compile: %w", err)
	}
	return rules, nil
}

func addRuleFile(compiler *yara.Compiler, path, namespace string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("yara rule file %q: %w", path, err)
	}
	defer f.Close()

	if err := compiler.AddFile(f, namespace); err != nil {
		return fmt.Errorf("yara rule file %q: %w", path, err)
	}
	return nil
}
