package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"spendly/internal/backend"
	"spendly/internal/cli"
	"spendly/internal/config"
	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/services"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := config.Load()

	fs := flag.NewFlagSet("spendly-adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Login email")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	currency := fs.String("currency", core.DefaultCurrency, "Preferred currency code")
	backendType := fs.String("backend", cfg.DataBackend, "Data backend (sqlite|postgres)")
	dbPath := fs.String("db", cfg.SQLiteDBPath, "Path to the SQLite database file")
	postgresURL := fs.String("postgres", cfg.PostgresURL, "Postgres connection URL")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" || *email == "" {
		fmt.Fprintln(stdout, "Usage: spendly-adduser -name <name> -email <email> [-password <password>] [-backend sqlite|postgres]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: name, email")
	}
	if backend.BackendType(*backendType) == backend.MemoryBackend {
		return fmt.Errorf("the memory backend does not persist users")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	logger := log.New(log.Config{Level: slog.LevelWarn, Output: stderr, Component: log.ComponentApp})
	cfg.DataBackend = *backendType
	cfg.SQLiteDBPath = *dbPath
	cfg.PostgresURL = *postgresURL
	cfg.AMQPURL = ""

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer result.Cleanup()

	accounts := services.NewAccountService(result.Store, nil)
	user, err := accounts.CreateUser(ctx, *name, *email, password, *currency)
	if errors.Is(err, core.ErrEmailTaken) {
		return fmt.Errorf("user %s already exists", core.NormalizeEmail(*email))
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", user.Email, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Pipes and tests provide the password as the first line.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
