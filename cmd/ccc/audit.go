package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
	"github.com/jellywish/confidential-cat-counter/pkg/audit/sink"
)

// maxAuditLine bounds one line of an audit log.
const maxAuditLine = 1 << 20

var auditFlags struct {
	key    string
	sqlite string
	jobID  string
	event  string
	runID  string
	since  time.Duration
	limit  int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify and query audit logs",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [FILE]",
	Short: "Verify signatures and sequence continuity of an audit log",
	Long: `Verify signatures and sequence continuity of an audit log.

FILE is a JSON-lines log as written by the stdout or file sink; "-" reads
stdin. With --sqlite, records are read from the SQLite sink instead and
continuity is checked per worker run.

The signing key defaults to audit.hmac_key from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query records stored by the SQLite sink",
	RunE:  runAuditQuery,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditQueryCmd)

	auditCmd.PersistentFlags().StringVar(&auditFlags.sqlite, "sqlite", "", "SQLite audit database path")

	auditVerifyCmd.Flags().StringVar(&auditFlags.key, "key", "", "HMAC signing key (default: from config)")

	auditQueryCmd.Flags().StringVar(&auditFlags.jobID, "job-id", "", "only records for this job")
	auditQueryCmd.Flags().StringVar(&auditFlags.event, "event", "", "only records of this event")
	auditQueryCmd.Flags().StringVar(&auditFlags.runID, "run-id", "", "only records from this worker run")
	auditQueryCmd.Flags().DurationVar(&auditFlags.since, "since", 0, "only records newer than this age (e.g. 24h)")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "maximum records to return (0 = unlimited)")
}

// verifyReport summarises one verification pass.
type verifyReport struct {
	Records  int
	Verified int
	Failures []string
}

func (rep *verifyReport) fields() map[string]any {
	failures := make([]any, len(rep.Failures))
	for i, f := range rep.Failures {
		failures[i] = f
	}
	return map[string]any{
		"records":  rep.Records,
		"verified": rep.Verified,
		"failures": failures,
	}
}

// chainChecker tracks sequence continuity within one run.
type chainChecker struct {
	last uint64
	seen bool
}

func (c *chainChecker) check(seq uint64) error {
	defer func() { c.last, c.seen = seq, true }()
	if c.seen && seq != c.last+1 {
		return fmt.Errorf("sequence gap: %d follows %d", seq, c.last)
	}
	return nil
}

func (rep *verifyReport) add(label string, r audit.Record, key []byte, chain *chainChecker) {
	rep.Records++
	ok := true
	if err := audit.Verify(r, key); err != nil {
		rep.Failures = append(rep.Failures, fmt.Sprintf("%s: sequence %d: %v", label, r.Sequence, err))
		ok = false
	}
	if err := chain.check(r.Sequence); err != nil {
		rep.Failures = append(rep.Failures, fmt.Sprintf("%s: %v", label, err))
		ok = false
	}
	if ok {
		rep.Verified++
	}
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	key, err := auditKey(ctx)
	if err != nil {
		return err
	}

	var rep verifyReport
	switch {
	case auditFlags.sqlite != "":
		err = verifySQLite(ctx, auditFlags.sqlite, key, &rep)
	case len(args) == 1 && args[0] == "-":
		err = verifyLines(cmd.InOrStdin(), key, &rep)
	case len(args) == 1:
		var f *os.File
		f, err = os.Open(args[0])
		if err == nil {
			defer f.Close()
			err = verifyLines(f, key, &rep)
		}
	default:
		return errors.New("an audit log FILE or --sqlite is required")
	}
	if err != nil {
		return err
	}

	if err := writeOutput(cmd, rep.fields()); err != nil {
		return err
	}
	if len(rep.Failures) > 0 {
		return fmt.Errorf("audit verification failed: %d of %d records", rep.Records-rep.Verified, rep.Records)
	}
	return nil
}

func auditKey(ctx context.Context) ([]byte, error) {
	if auditFlags.key != "" {
		return []byte(auditFlags.key), nil
	}
	cfg, err := loadConfig(ctx, slog.Default())
	if err != nil {
		return nil, err
	}
	return []byte(cfg.Audit.HMACKey), nil
}

func verifyLines(r io.Reader, key []byte, rep *verifyReport) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxAuditLine)

	var (
		chain chainChecker
		line  int
	)
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		rec, err := audit.ParseLine(scanner.Bytes())
		if err != nil {
			// Interleaved non-audit output is not an audit record.
			continue
		}
		rep.add(fmt.Sprintf("line %d", line), rec, key, &chain)
	}
	return scanner.Err()
}

func verifySQLite(ctx context.Context, path string, key []byte, rep *verifyReport) error {
	db, err := openAuditDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	stored, err := db.Query(ctx, sink.Filter{})
	if err != nil {
		return err
	}

	chains := make(map[string]*chainChecker)
	for _, sr := range stored {
		chain, ok := chains[sr.RunID]
		if !ok {
			chain = &chainChecker{}
			chains[sr.RunID] = chain
		}
		rep.add("run "+sr.RunID, sr.Record, key, chain)
	}
	return nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	if auditFlags.sqlite == "" {
		return errors.New("--sqlite is required")
	}
	db, err := openAuditDB(auditFlags.sqlite)
	if err != nil {
		return err
	}
	defer db.Close()

	filter := sink.Filter{
		JobID: auditFlags.jobID,
		Event: auditFlags.event,
		RunID: auditFlags.runID,
		Limit: auditFlags.limit,
	}
	if auditFlags.since > 0 {
		filter.Since = time.Now().Add(-auditFlags.since)
	}

	stored, err := db.Query(commandContext(cmd), filter)
	if err != nil {
		return err
	}

	out := make([]any, 0, len(stored))
	for _, sr := range stored {
		fields := sr.Record.Fields()
		fields[audit.FieldSignature] = sr.Record.Signature
		out = append(out, map[string]any{
			"run_id":      sr.RunID,
			"recorded_at": sr.RecordedAt.UTC().Format(time.RFC3339),
			"audit":       fields,
		})
	}
	return writeOutput(cmd, map[string]any{"count": len(out), "records": out})
}

func openAuditDB(path string) (*sink.SQLiteSink, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audit database: %w", err)
	}
	cfg := sink.DefaultSQLiteConfig()
	cfg.Path = path
	return sink.NewSQLiteSink(cfg)
}
