// Command nexuslite is the operator CLI for an embedded nexuslite
// database: opening a store, inserting and finding documents, running
// checkpoints, manifest recovery tooling, CSV/NDJSON/BSON import and
// export, and file signing, following tinysql's flag-based subcommand
// dispatch (cmd/tinysql/main.go).
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nexuslite/nexuslite/internal/config"
	"github.com/nexuslite/nexuslite/internal/crypto"
	"github.com/nexuslite/nexuslite/internal/engine"
	"github.com/nexuslite/nexuslite/internal/exporter"
	"github.com/nexuslite/nexuslite/internal/featureflags"
	"github.com/nexuslite/nexuslite/internal/importer"
	"github.com/nexuslite/nexuslite/internal/logging"
	"github.com/nexuslite/nexuslite/internal/query"
	"github.com/nexuslite/nexuslite/internal/telemetry"
	"github.com/nexuslite/nexuslite/internal/wasp"
)

// cliContext carries the process-wide config and logger every
// subcommand needs: loaded once in main, not reloaded per command.
type cliContext struct {
	cfg    *config.Config
	logger *logging.Logger
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := loadRuntimeConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.Configure(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	cc := &cliContext{cfg: cfg, logger: logger}

	switch os.Args[1] {
	case "open":
		err = runOpen(cc, os.Args[2:])
	case "insert":
		err = runInsert(cc, os.Args[2:])
	case "find":
		err = runFind(cc, os.Args[2:])
	case "checkpoint":
		err = runCheckpoint(cc, os.Args[2:])
	case "schedule-checkpoints":
		err = runScheduleCheckpoints(cc, os.Args[2:])
	case "verify-manifests":
		err = runVerifyManifests(os.Args[2:])
	case "repair-manifests":
		err = runRepairManifests(os.Args[2:])
	case "validate-resilience":
		err = runValidateResilience(os.Args[2:])
	case "import":
		err = runImport(cc, os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "keygen":
		err = runKeygen(cc, os.Args[2:])
	case "sign":
		err = runSign(cc, os.Args[2:])
	case "verify-signature":
		err = runVerifySignature(cc, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		logger.Errorf("%s failed: %v", os.Args[1], err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadRuntimeConfig loads YAML config from NEXUSLITE_CONFIG, when set,
// falling back to config.Default() otherwise.
func loadRuntimeConfig() (*config.Config, error) {
	path := os.Getenv("NEXUSLITE_CONFIG")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: nexuslite <command> [arguments]

Commands:
  open PATH                                   open a store and list its collections
  insert PATH COLLECTION JSON                 insert one document, printing its id
  find PATH COLLECTION [--eq field=value]...  query a collection
  checkpoint PATH OUT_PATH                    write a snapshot of the catalog to OUT_PATH
  schedule-checkpoints PATH OUT_PATH CRON      run checkpoint on a CRON schedule until interrupted
  verify-manifests PATH                       check manifest slot consistency
  repair-manifests PATH                       repair a broken manifest slot
  validate-resilience PATH                    fuzz-test manifest repair
  import PATH COLLECTION FILE                 import CSV/NDJSON/BSON into a collection
  export PATH COLLECTION FILE                 export a collection to CSV/NDJSON/BSON
  keygen                                      generate a P-256 signing keypair
  sign PRIVKEY FILE                           sign a file, printing a base64 signature
  verify-signature PUBKEY FILE SIGNATURE       verify a base64-encoded signature

Environment:
  NEXUSLITE_CONFIG   path to a YAML config file (see internal/config); defaults to config.Default()`)
}

// openEngine opens a nexuslite store at path. If path carries a
// ".wasp.enc" suffix, it is first unwrapped in place to its plaintext
// sibling path (path with the ".enc" suffix stripped) using
// NEXUSLITE_USERNAME/NEXUSLITE_PASSWORD from the environment, and the
// plaintext sibling is opened instead.
func openEngine(path string) (*engine.Engine, error) {
	if !strings.HasSuffix(path, ".enc") {
		return engine.New(path)
	}

	username, password, ok := crypto.CredentialsFromEnv()
	if !ok {
		return nil, errors.New("NEXUSLITE_USERNAME and NEXUSLITE_PASSWORD must be set to open an encrypted store")
	}
	plainPath := strings.TrimSuffix(path, ".enc")
	if err := crypto.UnwrapFile(path, plainPath, username, password); err != nil {
		return nil, err
	}
	return engine.New(plainPath)
}

func runOpen(cc *cliContext, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: open PATH")
	}

	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	names := eng.ListCollectionNames()
	cc.logger.Infof("opened %s (%d collections)", fs.Arg(0), len(names))
	fmt.Printf("opened %s (%d collections)\n", fs.Arg(0), len(names))
	for _, n := range names {
		fmt.Println(" ", n)
	}
	return nil
}

func runInsert(cc *cliContext, args []string) error {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 3 {
		return errors.New("usage: insert PATH COLLECTION JSON")
	}

	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(fs.Arg(2)), &fields); err != nil {
		return fmt.Errorf("parse document JSON: %w", err)
	}

	eng.CreateCollection(fs.Arg(1))
	id, err := eng.InsertDocument(fs.Arg(1), engine.NewBSONMap(fields), engine.Persistent, nil)
	if err != nil {
		return err
	}
	telemetry.Default.DocumentsInserted.Add(1)
	cc.logger.Debugf("inserted %s into %s", id, fs.Arg(1))
	fmt.Println(id)
	return nil
}

// eqFilters is a repeatable -eq field=value flag collected into an
// equality Filter list.
type eqFilters []query.Filter

func (e *eqFilters) String() string { return "" }

func (e *eqFilters) Set(raw string) error {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid --eq %q, expected field=value", raw)
	}
	*e = append(*e, query.Cmp(parts[0], query.Eq, parts[1]))
	return nil
}

func runFind(cc *cliContext, args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	var eqs eqFilters
	fs.Var(&eqs, "eq", "equality filter field=value, may repeat")
	filterJSON := fs.String("filter-json", "", "filter document as JSON; when set, --eq is ignored")
	limit := fs.Int("limit", 100, "maximum documents returned")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("usage: find PATH COLLECTION [--eq field=value]... [--filter-json JSON]")
	}

	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	filter := query.True()
	switch {
	case *filterJSON != "":
		f, qerr := query.ParseFilterJSON([]byte(*filterJSON))
		if qerr != nil {
			return fmt.Errorf("parse --filter-json: %w", qerr)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("invalid --filter-json: %w", err)
		}
		filter = f
	case len(eqs) > 0:
		filter = query.And(eqs...)
	}

	limiter := query.NewLimiter(cc.cfg.RateLimit.Capacity, cc.cfg.RateLimit.RefillPerSecond)
	caps := query.ResultCapConfig{Global: query.MaxLimit}
	executor := query.NewExecutor(eng, limiter, caps)

	docs, err := executor.Find(fs.Arg(1), filter, query.FindOptions{Limit: *limit})
	if err != nil {
		if errors.Is(err, query.ErrRateLimited) {
			telemetry.Default.RateLimited.Add(1)
		}
		return err
	}
	telemetry.Default.QueriesExecuted.Add(1)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, d := range docs {
		out := map[string]interface{}{"_id": d.ID}
		for _, k := range d.Data.Keys() {
			v, _ := d.Data.Get(k)
			out[k] = v
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func runCheckpoint(cc *cliContext, args []string) error {
	fs := flag.NewFlagSet("checkpoint", flag.ExitOnError)
	encryptPub := fs.String("encrypt-pub", "", "P-256 public key PEM file; when set, the snapshot is encrypted with checkpoint_encrypted semantics")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("usage: checkpoint PATH OUT_PATH")
	}
	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	outPath := fs.Arg(1)
	if *encryptPub == "" {
		if err := eng.Checkpoint(outPath); err != nil {
			return err
		}
	} else {
		if !featureflags.Default.IsEnabled("crypto") {
			return errors.New("checkpoint: --encrypt-pub requires the crypto feature flag, which is disabled")
		}
		pubPEM, err := os.ReadFile(*encryptPub)
		if err != nil {
			return err
		}
		transform := func(data []byte) ([]byte, error) {
			return crypto.EncryptForPublicKey(string(pubPEM), data)
		}
		if err := eng.CheckpointWithTransform(outPath, transform); err != nil {
			return err
		}
		cc.logger.Audit("encrypted checkpoint written to %s", outPath)
	}
	telemetry.Default.Checkpoints.Add(1)
	cc.logger.Infof("checkpoint written to %s", outPath)
	fmt.Println("checkpoint complete")
	return nil
}

// runScheduleCheckpoints runs a CheckpointScheduler in the foreground,
// writing a snapshot to outPath on the given CRON schedule until the
// process receives an interrupt or termination signal.
func runScheduleCheckpoints(cc *cliContext, args []string) error {
	fs := flag.NewFlagSet("schedule-checkpoints", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 3 {
		return errors.New("usage: schedule-checkpoints PATH OUT_PATH CRON_EXPR")
	}

	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	outPath, cronExpr := fs.Arg(1), fs.Arg(2)
	sched := engine.NewCheckpointScheduler(eng, outPath, cc.logger)
	if err := sched.Start(cronExpr); err != nil {
		return err
	}
	defer sched.Stop()

	cc.logger.Infof("scheduled checkpoints to %s on %q", outPath, cronExpr)
	fmt.Printf("scheduling checkpoints to %s on %q, press Ctrl-C to stop\n", outPath, cronExpr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

func runVerifyManifests(args []string) error {
	fs := flag.NewFlagSet("verify-manifests", flag.ExitOnError)
	pageSize := fs.Int("page-size", 4096, "page size the store was created with")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: verify-manifests PATH")
	}

	report, err := wasp.VerifyManifests(fs.Arg(0), *pageSize)
	if err != nil {
		return err
	}
	fmt.Printf("slotA valid=%v epoch=%d\n", report.SlotAValid, report.SlotAEpoch)
	fmt.Printf("slotB valid=%v epoch=%d\n", report.SlotBValid, report.SlotBEpoch)
	fmt.Printf("published=%d needsRepair=%v\n", report.Published, report.NeedsRepair)
	if report.RepairDetail != "" {
		fmt.Println(report.RepairDetail)
	}
	return nil
}

func runRepairManifests(args []string) error {
	fs := flag.NewFlagSet("repair-manifests", flag.ExitOnError)
	pageSize := fs.Int("page-size", 4096, "page size the store was created with")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: repair-manifests PATH")
	}
	if err := wasp.RepairManifestsFile(fs.Arg(0), *pageSize); err != nil {
		return err
	}
	fmt.Println("manifest repaired")
	return nil
}

func runValidateResilience(args []string) error {
	fs := flag.NewFlagSet("validate-resilience", flag.ExitOnError)
	pageSize := fs.Int("page-size", 4096, "page size the store was created with")
	trials := fs.Int("trials", 1000, "number of corruption trials")
	seed := fs.Int64("seed", 1, "random seed")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: validate-resilience PATH")
	}

	store, err := wasp.OpenStore(fs.Arg(0), *pageSize, wasp.FirstAllocatablePage, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	slotA, _ := store.ReadPage(wasp.ManifestSlotAPage)
	slotB, _ := store.ReadPage(wasp.ManifestSlotBPage)
	a, b := wasp.ReadBothSlots(slotA, slotB)
	good, _, err := wasp.ChoosePublished(a, b)
	if err != nil {
		return fmt.Errorf("no valid manifest to fuzz from: %w", err)
	}

	report := wasp.ValidateResilience(good, *pageSize, *trials, *seed)
	fmt.Printf("trials=%d corrupted=%d survived=%d unrecoverable=%d\n",
		report.Trials, report.Corrupted, report.Survived, len(report.UnrecoverableAt))
	return nil
}

func runImport(cc *cliContext, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	truncate := fs.Bool("truncate", false, "delete existing documents before importing")
	fs.Parse(args)
	if fs.NArg() < 3 {
		return errors.New("usage: import PATH COLLECTION FILE")
	}

	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	opts := &importer.ImportOptions{Truncate: *truncate}
	report, err := importer.ImportFile(context.Background(), eng, fs.Arg(1), fs.Arg(2), opts)
	if err != nil {
		return err
	}
	telemetry.Default.DocumentsInserted.Add(int64(report.Inserted))
	cc.logger.Infof("import %s -> %s: inserted=%d skipped=%d", fs.Arg(2), fs.Arg(1), report.Inserted, report.Skipped)
	fmt.Printf("inserted=%d skipped=%d\n", report.Inserted, report.Skipped)
	for _, e := range report.Errors {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "", "csv|ndjson|bson, inferred from FILE's extension when empty")
	fs.Parse(args)
	if fs.NArg() < 3 {
		return errors.New("usage: export PATH COLLECTION FILE")
	}

	eng, err := openEngine(fs.Arg(0))
	if err != nil {
		return err
	}
	defer eng.Close()

	docs, err := eng.GetAllDocuments(fs.Arg(1))
	if err != nil {
		return err
	}

	outPath := fs.Arg(2)
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fmtName := *format
	if fmtName == "" {
		fmtName = inferExportFormat(outPath)
	}

	bw := bufio.NewWriter(f)
	switch fmtName {
	case "csv":
		err = exporter.ExportCSV(bw, docs, exporter.Options{})
	case "ndjson":
		err = exporter.ExportNDJSON(bw, docs, exporter.Options{})
	case "bson":
		err = exporter.ExportBSON(bw, docs)
	default:
		return fmt.Errorf("unrecognized export format %q", fmtName)
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	fmt.Printf("exported %d documents to %s\n", len(docs), outPath)
	return nil
}

func inferExportFormat(path string) string {
	switch {
	case strings.HasSuffix(path, ".ndjson"), strings.HasSuffix(path, ".jsonl"):
		return "ndjson"
	case strings.HasSuffix(path, ".bson"):
		return "bson"
	default:
		return "csv"
	}
}

// requireCrypto fails fast when the "crypto" feature flag has been
// turned off, before any signing or key-generation work happens.
func requireCrypto() error {
	if !featureflags.Default.IsEnabled("crypto") {
		return errors.New("crypto feature flag is disabled")
	}
	return nil
}

func runKeygen(cc *cliContext, args []string) error {
	if err := requireCrypto(); err != nil {
		return err
	}
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	privOut := fs.String("priv", "nexuslite_signing_key.pem", "private key output path")
	pubOut := fs.String("pub", "nexuslite_signing_key.pub.pem", "public key output path")
	fs.Parse(args)

	priv, pub, err := crypto.GenerateP256KeyPair()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*privOut, []byte(priv), 0o600); err != nil {
		return err
	}
	if err := os.WriteFile(*pubOut, []byte(pub), 0o644); err != nil {
		return err
	}
	cc.logger.Audit("generated signing keypair priv=%s pub=%s", *privOut, *pubOut)
	fmt.Printf("wrote %s and %s\n", *privOut, *pubOut)
	return nil
}

func runSign(cc *cliContext, args []string) error {
	if err := requireCrypto(); err != nil {
		return err
	}
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("usage: sign PRIVKEY_PEM_FILE FILE")
	}

	privPEM, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	sig, err := crypto.SignFile(string(privPEM), fs.Arg(1))
	if err != nil {
		return err
	}
	cc.logger.Audit("signed %s", fs.Arg(1))
	fmt.Println(base64.StdEncoding.EncodeToString(sig))
	return nil
}

func runVerifySignature(cc *cliContext, args []string) error {
	if err := requireCrypto(); err != nil {
		return err
	}
	fs := flag.NewFlagSet("verify-signature", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 3 {
		return errors.New("usage: verify-signature PUBKEY_PEM_FILE FILE BASE64_SIGNATURE")
	}

	pubPEM, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(fs.Arg(2))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	ok, err := crypto.VerifyFile(string(pubPEM), fs.Arg(1), sig)
	if err != nil {
		return err
	}
	cc.logger.Audit("verified signature for %s: valid=%v", fs.Arg(1), ok)
	if !ok {
		fmt.Println("signature INVALID")
		os.Exit(1)
	}
	fmt.Println("signature valid")
	return nil
}
