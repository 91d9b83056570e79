// sharecli - Offline administration for secureshare stores
// This tool operates directly on the store file. Stop the server (or point
// at a copy) before running commands that modify the store.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/secureshare/secureshare/database"
	"github.com/secureshare/secureshare/share"
	"github.com/secureshare/secureshare/storage"
	"github.com/secureshare/secureshare/utils"
)

const (
	Version = "1.0.0"
	Usage   = `sharecli - Offline administration for secureshare stores

USAGE:
    sharecli [global options] command [command options] [arguments...]

COMMANDS:
    list        List shares in the store
    show        Show one share in detail
    extract     Decrypt a share's files to disk
    sweep       Remove expired shares from the store
    revoke      Delete a share before it expires
    events      Show the share event log
    version     Show version information

GLOBAL OPTIONS:
    --verbose, -v     Verbose output
    --help, -h        Show help

EXAMPLES:
    # List live shares
    sharecli list --store shared_files.json

    # Extract every file of a share into ./out
    sharecli extract --code 123456 --out out

    # Extract a single file, prompting for the code
    sharecli extract --file report.pdf

    # Bundle a share into a ZIP archive
    sharecli extract --code 123456 --zip

    # Remove expired shares
    sharecli sweep --store shared_files.json

    # Audit trail for one code
    sharecli events --code 123456 --db share_events.db
`
)

var verbose bool

func main() {
	// Global flags
	var (
		verboseFlag = flag.Bool("verbose", false, "Verbose output")
		vFlag       = flag.Bool("v", false, "Verbose output (short)")
		helpFlag    = flag.Bool("help", false, "Show help information")
		hFlag       = flag.Bool("h", false, "Show help information (short)")
		versionFlag = flag.Bool("version", false, "Show version information")
	)

	flag.Parse()

	verbose = *verboseFlag || *vFlag

	if *versionFlag {
		printVersion()
		return
	}

	if *helpFlag || *hFlag || flag.NArg() == 0 {
		printUsage()
		return
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "list":
		if err := handleListCommand(args); err != nil {
			logError("List failed: %v", err)
			os.Exit(1)
		}
	case "show":
		if err := handleShowCommand(args); err != nil {
			logError("Show failed: %v", err)
			os.Exit(1)
		}
	case "extract":
		if err := handleExtractCommand(args); err != nil {
			logError("Extract failed: %v", err)
			os.Exit(1)
		}
	case "sweep":
		if err := handleSweepCommand(args); err != nil {
			logError("Sweep failed: %v", err)
			os.Exit(1)
		}
	case "revoke":
		if err := handleRevokeCommand(args); err != nil {
			logError("Revoke failed: %v", err)
			os.Exit(1)
		}
	case "events":
		if err := handleEventsCommand(args); err != nil {
			logError("Events query failed: %v", err)
			os.Exit(1)
		}
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// handleListCommand processes the list command
func handleListCommand(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var (
		storePath = fs.String("store", "shared_files.json", "Path to the share store")
		showAll   = fs.Bool("all", false, "Include expired shares")
	)

	fs.Usage = func() {
		fmt.Printf(`Usage: sharecli list [FLAGS]

List the shares held in a store file.

FLAGS:
    --store FILE    Path to the share store (default: shared_files.json)
    --all           Include expired shares
    --help          Show this help message
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.New(*storePath)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	records := store.All()
	listed := 0
	for _, rec := range records {
		expired := rec.Expired(now)
		if expired && !*showAll {
			continue
		}
		listed++
		marker := ""
		if expired {
			marker = " [EXPIRED]"
		}
		fmt.Printf("%s  %d file(s)  %s  expires %s%s\n",
			rec.Code, len(rec.Files), formatBytes(rec.TotalSize()),
			rec.ExpiresAt.Format(time.RFC3339), marker)
	}

	if listed == 0 {
		fmt.Println("No shares found")
	}
	logVerbose("Store %s holds %d record(s) total", *storePath, len(records))

	return nil
}

// handleShowCommand processes the show command
func handleShowCommand(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	var (
		storePath = fs.String("store", "shared_files.json", "Path to the share store")
		code      = fs.String("code", "", "Share code (prompted if omitted)")
	)

	fs.Usage = func() {
		fmt.Printf(`Usage: sharecli show [FLAGS]

Show one share's files and timestamps. Expired shares are shown too;
this command never modifies the store.

FLAGS:
    --store FILE    Path to the share store (default: shared_files.json)
    --code CODE     Share code (prompted securely if omitted)
    --help          Show this help message
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	codeStr, err := resolveCode(*code)
	if err != nil {
		return err
	}

	store, err := storage.New(*storePath)
	if err != nil {
		return err
	}

	for _, rec := range store.All() {
		if rec.Code != codeStr {
			continue
		}
		status := "live"
		if rec.Expired(time.Now().UTC()) {
			status = "expired"
		}
		fmt.Printf("Share %s (%s)\n", rec.Code, status)
		fmt.Printf("  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Expires: %s\n", rec.ExpiresAt.Format(time.RFC3339))
		fmt.Printf("  Files (%s total):\n", formatBytes(rec.TotalSize()))
		for _, f := range rec.Files {
			enc := "plaintext"
			if f.Encrypted {
				enc = "encrypted"
			}
			fmt.Printf("    %s  %s  %s\n", f.Name, formatBytes(f.Size), enc)
		}
		return nil
	}

	return fmt.Errorf("no share with code %s", codeStr)
}

// handleExtractCommand processes the extract command
func handleExtractCommand(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	var (
		storePath = fs.String("store", "shared_files.json", "Path to the share store")
		code      = fs.String("code", "", "Share code (prompted if omitted)")
		fileName  = fs.String("file", "", "Extract only this file")
		outDir    = fs.String("out", ".", "Output directory")
		asZip     = fs.Bool("zip", false, "Write a single ZIP archive instead of loose files")
	)

	fs.Usage = func() {
		fmt.Printf(`Usage: sharecli extract [FLAGS]

Decrypt a share's files and write them to disk. The share code is the
decryption secret; pass it with --code or enter it at the hidden prompt.
Expired shares are swept during retrieval, like any other request.

FLAGS:
    --store FILE    Path to the share store (default: shared_files.json)
    --code CODE     Share code (prompted securely if omitted)
    --file NAME     Extract only the named file
    --out DIR       Output directory (default: current directory)
    --zip           Write share-CODE.zip instead of loose files
    --help          Show this help message

EXAMPLES:
    sharecli extract --code 123456 --out recovered
    sharecli extract --code 123456 --file report.pdf
    sharecli extract --code 123456 --zip
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	codeStr, err := resolveCode(*code)
	if err != nil {
		return err
	}

	store, err := storage.New(*storePath)
	if err != nil {
		return err
	}
	svc := share.NewService(store)

	rec, err := svc.Retrieve(codeStr)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if *asZip {
		names := share.AllNames(rec)
		if *fileName != "" {
			names = map[string]struct{}{*fileName: {}}
		}
		data, err := svc.DownloadArchive(rec, names, false)
		if err != nil {
			return err
		}
		target := filepath.Join(*outDir, fmt.Sprintf("share-%s.zip", codeStr))
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		fmt.Printf("Wrote %s (%s, %d file(s))\n", target, formatBytes(int64(len(data))), len(names))
		return nil
	}

	extracted := 0
	for _, f := range rec.Files {
		if *fileName != "" && f.Name != *fileName {
			continue
		}
		data, err := svc.DownloadFile(rec, f.Name)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", f.Name, err)
		}
		// Keep writes inside the output directory even for hostile names
		target := filepath.Join(*outDir, filepath.Base(f.Name))
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		logVerbose("Decrypted %s (%d bytes)", f.Name, len(data))
		fmt.Printf("Wrote %s (%s)\n", target, formatBytes(int64(len(data))))
		extracted++
	}

	if extracted == 0 {
		return fmt.Errorf("share has no file named %s", *fileName)
	}

	return nil
}

// handleSweepCommand processes the sweep command
func handleSweepCommand(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	storePath := fs.String("store", "shared_files.json", "Path to the share store")

	fs.Usage = func() {
		fmt.Printf(`Usage: sharecli sweep [FLAGS]

Remove expired shares and rewrite the store.

FLAGS:
    --store FILE    Path to the share store (default: shared_files.json)
    --help          Show this help message
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.New(*storePath)
	if err != nil {
		return err
	}

	evicted, err := store.EvictExpired(time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d expired share(s), %d remaining\n", evicted, store.Count())
	return nil
}

// handleRevokeCommand processes the revoke command
func handleRevokeCommand(args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	var (
		storePath = fs.String("store", "shared_files.json", "Path to the share store")
		code      = fs.String("code", "", "Share code to delete (required)")
	)

	fs.Usage = func() {
		fmt.Printf(`Usage: sharecli revoke [FLAGS]

Delete a share before its expiry. The code is gone for good; the
six digits return to the pool for future shares.

FLAGS:
    --store FILE    Path to the share store (default: shared_files.json)
    --code CODE     Share code to delete (required)
    --help          Show this help message
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *code == "" {
		return fmt.Errorf("share code is required")
	}
	if err := utils.ValidateShareCode(*code); err != nil {
		return err
	}

	store, err := storage.New(*storePath)
	if err != nil {
		return err
	}

	if err := store.Delete(*code); err != nil {
		return err
	}

	fmt.Printf("Revoked share %s\n", *code)
	return nil
}

// handleEventsCommand processes the events command
func handleEventsCommand(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	var (
		dbPath = fs.String("db", "share_events.db", "Path to the event database")
		code   = fs.String("code", "", "Only events for this share code")
		limit  = fs.Int("limit", 50, "Maximum events to show (most recent first)")
	)

	fs.Usage = func() {
		fmt.Printf(`Usage: sharecli events [FLAGS]

Show the share event log.

FLAGS:
    --db FILE       Path to the event database (default: share_events.db)
    --code CODE     Only events for this share code
    --limit N       Maximum events to show (default: 50)
    --help          Show this help message
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*dbPath); err != nil {
		return fmt.Errorf("event database not found: %s", *dbPath)
	}

	db, err := database.InitDB(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var events []database.Event
	if *code != "" {
		events, err = db.EventsForCode(*code)
	} else {
		events, err = db.RecentEvents(*limit)
	}
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	for _, ev := range events {
		detail := ev.Detail
		if detail != "" {
			detail = "  " + detail
		}
		fmt.Printf("%s  %s  %s%s\n", ev.CreatedAt.Format(time.RFC3339), ev.Code, ev.Action, detail)
	}

	return nil
}

// Helper functions

func printVersion() {
	fmt.Printf("sharecli version %s\n", Version)
	fmt.Printf("Offline administration for secureshare stores\n")
}

func printUsage() {
	fmt.Print(Usage)
}

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf("[VERBOSE] "+format+"\n", args...)
	}
}

func logError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
}

// resolveCode returns the given code after validation, prompting for one
// when none was supplied. The prompt hides input since the code is the
// decryption secret.
func resolveCode(code string) (string, error) {
	if code == "" {
		entered, err := readCode()
		if err != nil {
			return "", fmt.Errorf("failed to read share code: %w", err)
		}
		code = entered
	}
	if err := utils.ValidateShareCode(code); err != nil {
		return "", err
	}
	return code, nil
}

func readCode() (string, error) {
	fmt.Print("Share code: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		code, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", err
		}
		fmt.Println()
		return string(code), nil
	}
	// Fallback for non-terminal input
	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// formatBytes renders a byte count in human-readable units.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
