package rules

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadMode controls how errors are handled while loading a rule set,
// mirroring the teacher's cli.LoadMode.
type LoadMode int

const (
	// LoadModeFailFast stops on the first malformed rule.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll parses every rule and returns every error found.
	LoadModeCollectAll
)

// LoadError is a directory- or document-level rule-loading failure.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeNotFound    = "R001"
	ErrCodeNoFiles     = "R002"
	ErrCodeLoadFailed  = "R003"
	ErrCodeBuildFailed = "R004"
	ErrCodeCompile     = "R005"
	ErrCodeEmpty       = "R006"
)

// LoadResult is the outcome of loading a rule-set directory.
type LoadResult struct {
	Rules     []Rule
	FileCount int
}

// LoadRules loads every `rule: "<id>": {...}` document under dir using the
// CUE Go API directly (cuecontext + cue/load), the same pattern as the
// teacher's cli.LoadSpecs. The rule set itself has no analog to concepts
// or syncs — it is a flat map of rule id to rule struct.
func LoadRules(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{}
	var errs []error

	ruleSet := value.LookupPath(cue.ParsePath("rule"))
	if !ruleSet.Exists() {
		return result, []error{&LoadError{Code: ErrCodeEmpty, Message: "no rule documents found"}}
	}

	iter, err := ruleSet.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("iterating rules: %v", err)}}
	}

	for iter.Next() {
		id := iter.Selector().String()
		rule, compileErr := CompileRule(id, iter.Value())
		if compileErr != nil {
			loadErr := &LoadError{Code: ErrCodeCompile, Message: fmt.Sprintf("rule %q: %v", id, compileErr)}
			errs = append(errs, loadErr)
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Rules = append(result.Rules, *rule)
	}

	if len(result.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeEmpty, Message: "rule set is empty"})
	}

	return result, errs
}
