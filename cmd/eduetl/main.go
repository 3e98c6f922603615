package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eduetl/internal/analytics"
	"eduetl/internal/config"
	"eduetl/internal/jobstore"
	"eduetl/internal/logging"
	"eduetl/internal/metrics"
	"eduetl/internal/metrics/datadog"
	"eduetl/internal/pipeline"
	"eduetl/internal/warehouse"

	// register all warehouse backends with the factory.
	_ "eduetl/internal/warehouse/all"
)

// main is the entry point for the eduetl binary. It loads the job config,
// optionally initializes the metrics backend, and runs one of the modes:
// run (default), validate-only, rules, jobs, or an analytics query.
func main() {
	var (
		cfgPath        string
		mode           string
		metricsBackend string
		query          string
		period         string
		metric         string
		studentKey     string
		courseKey      string
		departmentKey  string
		fromStr        string
		toStr          string
		logLevel       string
	)

	flag.StringVar(&cfgPath, "config", "configs/sample.json", "job config JSON path")
	flag.StringVar(&mode, "mode", "run", "run | validate | rules | analytics")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend (datadog, none); empty reads METRICS_BACKEND")
	flag.StringVar(&query, "query", "kpi", "analytics query: performance | enrollment | courses | departments | trend | kpi | features")
	flag.StringVar(&period, "period", "monthly", "trend period: daily | weekly | monthly | yearly")
	flag.StringVar(&metric, "metric", "avg_grade_points", "trend metric")
	flag.StringVar(&studentKey, "student", "", "filter: student business key (required for -query features)")
	flag.StringVar(&courseKey, "course", "", "filter: course business key")
	flag.StringVar(&departmentKey, "department", "", "filter: department business key")
	flag.StringVar(&fromStr, "from", "", "filter: start date (YYYY-MM-DD)")
	flag.StringVar(&toStr, "to", "", "filter: end date (YYYY-MM-DD)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logging.New(logging.Config{
		Level:   logLevel,
		Format:  os.Getenv("LOG_FORMAT"),
		Service: "eduetl",
		File:    os.Getenv("LOG_FILE"),
	})

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidateJobConfig(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	// validate and rules modes never open the warehouse, so the service
	// decides which issues matter for them.
	if config.HasError(issues) && mode != "validate" && mode != "rules" {
		fatalf("configuration is invalid: %v", cfgPath)
	}

	setupMetrics(metricsBackend, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "run":
		runJob(ctx, cfg, log)
	case "validate":
		validateOnly(ctx, cfg, log)
	case "rules":
		listRules(cfg, log)
	case "analytics":
		f, err := buildFilter(studentKey, courseKey, departmentKey, fromStr, toStr)
		if err != nil {
			fatalf("%v", err)
		}
		runAnalytics(ctx, cfg, query, period, metric, studentKey, f)
	default:
		fatalf("unknown mode %q", mode)
	}
}

func setupMetrics(backendName string, cfg config.JobConfig, log *logging.Logger) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		jobName := cfg.Job
		if jobName == "" {
			jobName = "eduetl_job"
		}
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: jobName,
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			log.Warnf("metrics: datadog init failed: %v; metrics disabled", err)
			return
		}
		log.Infof("metrics: backend=datadog job_name=%s", jobName)
		metrics.SetBackend(b)
		// Close is wired through exitHooks so every mode flushes on the
		// way out.
		exitHooks = append(exitHooks, func() {
			if err := b.Close(); err != nil {
				log.Warnf("metrics: close/flush error: %v", err)
			}
		})
	case "", "none":
		// nop backend remains
	default:
		log.Warnf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

var exitHooks []func()

func exit(code int) {
	for _, h := range exitHooks {
		h()
	}
	os.Exit(code)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	exit(1)
}

func runJob(ctx context.Context, cfg config.JobConfig, log *logging.Logger) {
	store, err := jobstore.New(cfg.Store)
	if err != nil {
		fatalf("open job store: %v", err)
	}

	svc, err := pipeline.NewService(pipeline.Options{
		Store:      store,
		Logger:     log,
		MaxWorkers: cfg.Runtime.MaxWorkersOrDefault(),
	})
	if err != nil {
		fatalf("%v", err)
	}

	start := time.Now()
	job, err := svc.Submit(ctx, cfg)
	if err != nil {
		fatalf("submit: %v", err)
	}
	log.Infof("job submitted id=%s type=%s", job.ID, job.Type)

	// Poll until terminal; Ctrl-C requests cooperative cancellation and
	// keeps polling until the job lands in a terminal state.
	cancelRequested := false
	for {
		select {
		case <-ctx.Done():
			if !cancelRequested {
				cancelRequested = true
				log.Warnf("cancelling job %s", job.ID)
				if err := svc.Cancel(context.Background(), job.ID); err != nil {
					log.Warnf("cancel: %v", err)
				}
			}
		case <-time.After(500 * time.Millisecond):
		}

		j, err := svc.Status(context.Background(), job.ID)
		if err != nil {
			fatalf("status: %v", err)
		}
		if j.Status.Terminal() {
			printJSON(j)
			_ = svc.Close()
			if j.Status != jobstore.StatusCompleted {
				exit(1)
			}
			log.Infof("completed in %s", time.Since(start).Truncate(time.Millisecond))
			exit(0)
		}
	}
}

func validateOnly(ctx context.Context, cfg config.JobConfig, log *logging.Logger) {
	store := jobstore.NewMemory()
	svc, err := pipeline.NewService(pipeline.Options{Store: store, Logger: log})
	if err != nil {
		fatalf("%v", err)
	}
	report, err := svc.ValidateOnly(ctx, cfg)
	if err != nil {
		fatalf("validate: %v", err)
	}
	printJSON(report)
	if report.RecordsFailed > 0 {
		exit(1)
	}
	exit(0)
}

func listRules(cfg config.JobConfig, log *logging.Logger) {
	store := jobstore.NewMemory()
	svc, err := pipeline.NewService(pipeline.Options{Store: store, Logger: log})
	if err != nil {
		fatalf("%v", err)
	}
	rules, err := svc.ListRules(cfg.JobType, cfg.Rules)
	if err != nil {
		fatalf("rules: %v", err)
	}
	printJSON(rules)
	exit(0)
}

func buildFilter(student, course, department, fromStr, toStr string) (warehouse.Filter, error) {
	f := warehouse.Filter{
		StudentKey:    student,
		CourseKey:     course,
		DepartmentKey: department,
	}
	var err error
	if fromStr != "" {
		if f.From, err = time.ParseInLocation("2006-01-02", fromStr, time.UTC); err != nil {
			return f, fmt.Errorf("bad -from: %v", err)
		}
	}
	if toStr != "" {
		if f.To, err = time.ParseInLocation("2006-01-02", toStr, time.UTC); err != nil {
			return f, fmt.Errorf("bad -to: %v", err)
		}
	}
	return f, nil
}

func runAnalytics(ctx context.Context, cfg config.JobConfig, query, periodStr, metricStr, studentKey string, f warehouse.Filter) {
	repo, err := warehouse.New(ctx, warehouse.Config{
		Kind:        cfg.Storage.Kind,
		DSN:         cfg.Storage.DSN,
		DedupeFacts: cfg.Runtime.DedupeFacts == "natural_key",
	})
	if err != nil {
		fatalf("open warehouse: %v", err)
	}
	defer repo.Close()

	agg := analytics.New(repo)
	var out any

	switch query {
	case "performance":
		out, err = agg.PerformanceMetrics(ctx, f)
	case "enrollment":
		out, err = agg.EnrollmentStats(ctx, f)
	case "courses":
		out, err = agg.CourseStatistics(ctx, f)
	case "departments":
		out, err = agg.DepartmentStatistics(ctx, f)
	case "trend":
		var period analytics.Period
		var metric analytics.TrendMetric
		if period, err = analytics.ParsePeriod(periodStr); err != nil {
			fatalf("%v", err)
		}
		if metric, err = analytics.ParseTrendMetric(metricStr); err != nil {
			fatalf("%v", err)
		}
		out, err = agg.Trend(ctx, metric, period, f)
	case "kpi":
		out, err = agg.KPI(ctx, f)
	case "features":
		if studentKey == "" {
			fatalf("-student is required for -query features")
		}
		out, err = agg.StudentFeatures(ctx, studentKey, f)
	default:
		fatalf("unknown analytics query %q", query)
	}
	if err != nil {
		fatalf("analytics: %v", err)
	}
	printJSON(out)
	exit(0)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}
