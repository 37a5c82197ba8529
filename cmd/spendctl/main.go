package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"spendscope/internal/config"
	"spendscope/internal/logger"
	"spendscope/internal/models"
	"spendscope/internal/services/analytics"
	"spendscope/internal/services/dataloader"
	"spendscope/internal/services/storage"
	"spendscope/internal/version"
)

func main() {
	log := logger.New(os.Getenv("SPEND_DEBUG") == "true")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "aggregate":
		err = runAggregate(os.Args[2:], os.Stdout)
	case "encrypt":
		err = runEncrypt(log, os.Args[2:])
	case "decrypt":
		err = runDecrypt(log, os.Args[2:])
	case "version":
		fmt.Println(version.Get().String())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

func printUsage() {
	fmt.Println("spendscope CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  spendctl <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  aggregate  Aggregate a CSV or JSON transaction file and print the result")
	fmt.Println("  encrypt    Encrypt the uploads directory with a passphrase")
	fmt.Println("  decrypt    Decrypt the uploads directory")
	fmt.Println("  version    Print build information")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'spendctl <command> -h' for more information on a command.")
}

func runAggregate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a CSV or JSON transaction file")
	start := fs.String("start", "", "First day to include (YYYY-MM-DD)")
	end := fs.String("end", "", "Last day to include (YYYY-MM-DD)")
	category := fs.String("category", "", "Comma-separated categories to include")
	minAmount := fs.String("min", "", "Minimum absolute amount")
	maxAmount := fs.String("max", "", "Maximum absolute amount")
	search := fs.String("q", "", "Text to search in description and merchant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	txns, _, err := dataloader.Decode(*file, data)
	if err != nil {
		return err
	}

	crit := analytics.Criteria{Search: *search}
	if crit.Start, err = parseDay(*start); err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	if crit.End, err = parseDay(*end); err != nil {
		return fmt.Errorf("-end: %w", err)
	}
	if crit.MinAmount, err = parseAmount(*minAmount); err != nil {
		return fmt.Errorf("-min: %w", err)
	}
	if crit.MaxAmount, err = parseAmount(*maxAmount); err != nil {
		return fmt.Errorf("-max: %w", err)
	}
	for _, c := range strings.Split(*category, ",") {
		if c = strings.TrimSpace(c); c != "" {
			crit.Categories = append(crit.Categories, c)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(analytics.Aggregate(analytics.Filter(txns, crit)))
}

func runEncrypt(log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	dir := fs.String("dir", config.Load().UploadsDirectory, "Uploads directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.Open(*dir)
	if err != nil {
		return err
	}
	if store.Sealed() {
		return storage.ErrAlreadySealed
	}

	pass, err := readPassphrase("New passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := readPassphrase("Confirm passphrase: ")
	if err != nil {
		return err
	}
	if pass != confirm {
		return errors.New("passphrases do not match")
	}

	if err := store.Seal(pass); err != nil {
		return err
	}
	log.Info().Str("dir", *dir).Msg("Uploads directory encrypted")
	return nil
}

func runDecrypt(log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	dir := fs.String("dir", config.Load().UploadsDirectory, "Uploads directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.Open(*dir)
	if err != nil {
		return err
	}
	if !store.Sealed() {
		return storage.ErrNotSealed
	}

	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	if err := store.Unseal(pass); err != nil {
		return err
	}
	log.Info().Str("dir", *dir).Msg("Uploads directory decrypted")
	return nil
}

// readPassphrase prompts on the terminal without echo. SPEND_PASSPHRASE is
// used instead when stdin is not a terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if pass := os.Getenv("SPEND_PASSPHRASE"); pass != "" {
			return pass, nil
		}
		return "", errors.New("stdin is not a terminal; set SPEND_PASSPHRASE")
	}

	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(pass), nil
}

func parseDay(s string) (models.Day, error) {
	if s == "" {
		return models.Day{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return models.Day{}, err
	}
	return models.DayOf(t), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
