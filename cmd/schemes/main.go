package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/schemes/internal/engine"
	pkgengine "github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
	"github.com/celerix-dev/schemes/pkg/sdk"
)

const defaultAddr = "localhost:5000"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		return
	}

	addr := os.Getenv(sdk.EnvAPIAddr)
	if addr == "" {
		addr = defaultAddr
	}

	client, err := sdk.NewClient(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, client, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one CLI command against store and writes its result to out.
func run(ctx context.Context, store pkgengine.Store, args []string, out io.Writer) error {
	command := strings.ToLower(args[0])
	args = args[1:]

	switch command {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(out)
		var f schema.Filter
		fs.StringVar(&f.Category, "category", "", "only schemes in this category")
		fs.StringVar(&f.Status, "status", "", "only schemes with this status")
		fs.StringVar(&f.Search, "search", "", "text to find in name or description")
		if err := fs.Parse(args); err != nil {
			return err
		}
		list, err := store.FindMany(ctx, f)
		if err != nil {
			return err
		}
		return printJSON(out, list)

	case "get":
		if len(args) < 1 {
			return errors.New("usage: schemes get <id>")
		}
		s, err := store.FindByID(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, s)

	case "create":
		if len(args) < 1 {
			return errors.New("usage: schemes create <json>")
		}
		in, err := parseInput(args[0])
		if err != nil {
			return err
		}
		s, err := store.Create(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(out, s)

	case "update":
		if len(args) < 2 {
			return errors.New("usage: schemes update <id> <json>")
		}
		in, err := parseInput(args[1])
		if err != nil {
			return err
		}
		s, err := store.UpdateByID(ctx, args[0], in)
		if err != nil {
			return err
		}
		return printJSON(out, s)

	case "delete":
		if len(args) < 1 {
			return errors.New("usage: schemes delete <id>")
		}
		if err := store.DeleteByID(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(out, "OK")
		return nil

	case "push":
		if len(args) < 1 {
			return errors.New("usage: schemes push <dataDir>")
		}
		local, err := engine.OpenMemStore(args[0])
		if err != nil {
			return err
		}
		n, err := engine.Migrate(ctx, local, store)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pushed %d schemes\n", n)
		return nil

	case "ping":
		if err := store.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "PONG")
		return nil

	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// parseInput decodes a JSON object argument, or reads stdin when it is "-".
func parseInput(arg string) (schema.SchemeInput, error) {
	var in schema.SchemeInput
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return in, fmt.Errorf("read stdin: %w", err)
		}
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid scheme json: %w", err)
	}
	return in, nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Schemes CLI - Interface for the Schemes API")
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, "  schemes list [-category C] [-status S] [-search TEXT]")
	fmt.Fprintln(out, "  schemes get <id>")
	fmt.Fprintln(out, "  schemes create <json|->")
	fmt.Fprintln(out, "  schemes update <id> <json|->")
	fmt.Fprintln(out, "  schemes delete <id>")
	fmt.Fprintln(out, "  schemes push <dataDir>")
	fmt.Fprintln(out, "  schemes ping")
	fmt.Fprintln(out, "\nEnvironment Variables:")
	fmt.Fprintf(out, "  %s        Address of the API (default: %s)\n", sdk.EnvAPIAddr, defaultAddr)
	fmt.Fprintln(out, "  SCHEMES_TLS_SKIP_VERIFY Set to true to accept a self-signed certificate")
}

func printJSON(out io.Writer, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(bytes))
	return nil
}
