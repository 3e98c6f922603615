package config

import (
	"strings"
	"testing"
)

const validConfigJSON = `{
	"job": "spring_import",
	"job_type": "performance_data",
	"source": {"kind": "file", "file": {"path": "/data/perf.csv"}},
	"parser": {"kind": "csv", "options": {"delimiter": ";"}},
	"storage": {"kind": "postgres", "dsn": "postgres://localhost/edu"},
	"runtime": {"batch_size": 500, "dedupe_facts": "natural_key"}
}`

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validConfigJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.JobType != JobTypePerformance {
		t.Errorf("job_type = %q", cfg.JobType)
	}
	if cfg.Source.File == nil || cfg.Source.File.Path != "/data/perf.csv" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if got := cfg.Parser.Options.String("delimiter", ","); got != ";" {
		t.Errorf("delimiter option = %q, want ;", got)
	}
	if cfg.Runtime.BatchSize != 500 {
		t.Errorf("batch_size = %d", cfg.Runtime.BatchSize)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"job_tpe": "performance_data"}`))
	if err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestDataType(t *testing.T) {
	cases := map[string]string{
		JobTypeStudent:     "student",
		JobTypeCourse:      "course",
		JobTypePerformance: "performance",
		JobTypeFeedback:    "feedback",
		"payroll_data":     "",
	}
	for jt, want := range cases {
		if got := DataType(jt); got != want {
			t.Errorf("DataType(%q) = %q, want %q", jt, got, want)
		}
	}
}

func TestRuntimeDefaults(t *testing.T) {
	var r Runtime
	if r.BatchSizeOrDefault() != DefaultBatchSize {
		t.Errorf("batch size default = %d", r.BatchSizeOrDefault())
	}
	if r.MaxWorkersOrDefault() != DefaultMaxWorkers {
		t.Errorf("max workers default = %d", r.MaxWorkersOrDefault())
	}
	if r.RetryLimitOrDefault() != DefaultRetryLimit {
		t.Errorf("retry limit default = %d", r.RetryLimitOrDefault())
	}
	if r.RetryBackoffMSOrDefault() != DefaultRetryBackoffMS {
		t.Errorf("retry backoff default = %d", r.RetryBackoffMSOrDefault())
	}
	if r.PassingThresholdOrDefault() != DefaultPassingThreshold {
		t.Errorf("passing threshold default = %v", r.PassingThresholdOrDefault())
	}
	if r.ErrorSampleLimitOrDefault() != DefaultErrorSampleLimit {
		t.Errorf("error sample limit default = %d", r.ErrorSampleLimitOrDefault())
	}
	if !r.CountRecordsOrDefault() {
		t.Error("count records should default to true")
	}

	off := false
	zero := 0.0
	r = Runtime{BatchSize: 10, CountRecords: &off, PassingThreshold: &zero}
	if r.BatchSizeOrDefault() != 10 {
		t.Errorf("explicit batch size = %d", r.BatchSizeOrDefault())
	}
	if r.CountRecordsOrDefault() {
		t.Error("explicit count_records=false ignored")
	}
	if r.PassingThresholdOrDefault() != 0 {
		t.Errorf("explicit zero threshold = %v", r.PassingThresholdOrDefault())
	}
}

func TestValidateJobConfigValid(t *testing.T) {
	cfg, err := Decode(strings.NewReader(validConfigJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	issues := ValidateJobConfig(cfg)
	if HasError(issues) {
		t.Errorf("valid config has errors: %v", issues)
	}
}

func TestValidateJobConfigCollectsAllIssues(t *testing.T) {
	cfg := JobConfig{
		JobType: "payroll_data",
		Source:  Source{Kind: "s3"},
		Parser:  Parser{Kind: "xml"},
		Rules:   []Rule{{RuleType: "regex"}},
	}
	issues := ValidateJobConfig(cfg)
	if !HasError(issues) {
		t.Fatal("broken config reported no errors")
	}
	wantPaths := []string{
		"job_type", "source.kind", "parser.kind",
		"storage.kind", "storage.dsn",
		"rules[0].field_name", "rules[0].rule_type",
	}
	byPath := make(map[string]bool, len(issues))
	for _, iss := range issues {
		byPath[iss.Path] = true
	}
	for _, p := range wantPaths {
		if !byPath[p] {
			t.Errorf("missing issue for %s in %v", p, issues)
		}
	}
}

func TestValidateJobConfigWarnsOnTinyBatch(t *testing.T) {
	cfg, _ := Decode(strings.NewReader(validConfigJSON))
	cfg.Runtime.BatchSize = 2
	issues := ValidateJobConfig(cfg)
	if HasError(issues) {
		t.Errorf("warning-only config has errors: %v", issues)
	}
	var warned bool
	for _, iss := range issues {
		if iss.Severity == SeverityWarning && iss.Path == "runtime.batch_size" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no batch size warning in %v", issues)
	}
}

func TestValidateJobConfigDedupeFacts(t *testing.T) {
	cfg, _ := Decode(strings.NewReader(validConfigJSON))
	cfg.Runtime.DedupeFacts = "upsert"
	if !HasError(ValidateJobConfig(cfg)) {
		t.Error("bad dedupe_facts accepted")
	}
}

func TestIssueString(t *testing.T) {
	iss := errIssue("storage.dsn", "required")
	if got := iss.String(); got != "storage.dsn: required" {
		t.Errorf("String() = %q", got)
	}
}
