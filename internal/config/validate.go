package config

import "fmt"

// Severity classifies a config validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from ValidateJobConfig. Path is a dotted location in
// the config document ("storage.kind").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

func errIssue(path, format string, a ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)}
}

func warnIssue(path, format string, a ...any) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)}
}

// ValidateJobConfig checks a JobConfig for structural problems before a job
// is created. It returns every issue found rather than stopping at the
// first, so operators can fix a config in one pass.
func ValidateJobConfig(cfg JobConfig) []Issue {
	var issues []Issue

	if !KnownJobType(cfg.JobType) {
		issues = append(issues, errIssue("job_type", "unknown job type %q", cfg.JobType))
	}

	switch cfg.Source.Kind {
	case "file":
		if cfg.Source.File == nil || cfg.Source.File.Path == "" {
			issues = append(issues, errIssue("source.file.path", "required for source.kind=file"))
		}
	case "":
		issues = append(issues, errIssue("source.kind", "required"))
	default:
		issues = append(issues, errIssue("source.kind", "unsupported kind %q", cfg.Source.Kind))
	}

	switch cfg.Parser.Kind {
	case "csv", "json", "htmltable":
	case "":
		issues = append(issues, errIssue("parser.kind", "required"))
	default:
		issues = append(issues, errIssue("parser.kind", "unsupported kind %q", cfg.Parser.Kind))
	}

	if cfg.Storage.Kind == "" {
		issues = append(issues, errIssue("storage.kind", "required"))
	}
	if cfg.Storage.DSN == "" {
		issues = append(issues, errIssue("storage.dsn", "required"))
	}

	switch cfg.Runtime.DedupeFacts {
	case "", "append", "natural_key":
	default:
		issues = append(issues, errIssue("runtime.dedupe_facts", "must be \"append\" or \"natural_key\", got %q", cfg.Runtime.DedupeFacts))
	}

	if cfg.Runtime.BatchSize < 0 {
		issues = append(issues, errIssue("runtime.batch_size", "must be >= 0"))
	}
	if cfg.Runtime.BatchSize > 0 && cfg.Runtime.BatchSize < 10 {
		issues = append(issues, warnIssue("runtime.batch_size", "very small batch size %d will update the job store once per handful of rows", cfg.Runtime.BatchSize))
	}

	for i, r := range cfg.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		if r.FieldName == "" {
			issues = append(issues, errIssue(path+".field_name", "required"))
		}
		switch r.RuleType {
		case "required", "type", "range", "pattern", "enum", "unique":
		default:
			issues = append(issues, errIssue(path+".rule_type", "unknown rule type %q", r.RuleType))
		}
	}

	return issues
}

// HasError reports whether any issue is severity error.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
