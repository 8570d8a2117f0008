// Package labwatch polls a GitLab instance's health, readiness and metadata
// endpoints and records every poll attempt in a database.
//
// Each poll cycle probes the three endpoints in a fixed order and commits
// exactly one record, whatever the outcome. A probe that receives an
// unacceptable response fails on its own; the others still run. An
// unexpected fault, such as an unreachable host, ends the cycle early and
// its trace is stored on the record.
//
// # Quick Start
//
// Poll once and store the result in a SQLite file:
//
//	target, _ := labwatch.NewTarget("https://gitlab.example.com", os.Getenv("GITLAB_ACCESS_TOKEN"))
//	w, _ := labwatch.New(target,
//	    labwatch.WithDatabase("polls.db"),
//	    labwatch.WithAutoMigrate(),
//	)
//	err := w.Run(context.Background())
//
// # Continuous polling
//
// [WithContinuous] repeats cycles until the context is cancelled:
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w, err := labwatch.New(target,
//	    labwatch.WithContinuous(5*time.Minute),
//	    labwatch.WithSaveResponses(true),
//	    labwatch.WithListenAddr(":9090"),
//	    labwatch.WithCycleCallback(func(r labwatch.CycleResult) {
//	        log.Printf("%s healthy=%v ready=%v", r.BaseURL, r.HealthCheckPassed, r.ReadinessCheckPassed)
//	    }),
//	)
//	err = w.Run(ctx) // returns after the in-flight cycle commits
//
// The wait between cycles is the only point where cancellation is observed.
// A running probe is never interrupted.
//
// # Storage
//
// Records go to SQLite by default. A postgres:// DSN passed to
// [WithDatabase] selects PostgreSQL instead. Without [WithAutoMigrate], Run
// refuses to start against a missing database or an outdated schema; the
// labwatch CLI provides a migrate command for that.
package labwatch
