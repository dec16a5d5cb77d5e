package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"propertyescrow/config"
	"propertyescrow/native/monetary"
)

var cliNow = time.Now

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "currencies":
		return runCurrencies(args[1:], stdout, stderr)
	case "to-base":
		return runToBase(args[1:], stdout, stderr)
	case "from-base":
		return runFromBase(args[1:], stdout, stderr)
	case "format":
		return runFormat(args[1:], stdout, stderr)
	case "earnest":
		return runEarnest(args[1:], stdout, stderr)
	case "fee":
		return runFee(args[1:], stdout, stderr)
	case "validate":
		return runValidate(args[1:], stdout, stderr)
	case "convert":
		return runConvert(args[1:], stdout, stderr)
	case "simulate":
		return runSimulate(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
	}
	configPath := fs.String("config", "", "path to a TOML or YAML config file")
	return fs, configPath
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func loadMonetary(path string) (*config.Config, *monetary.Engine, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	engine, err := cfg.MonetaryEngine(cliNow)
	if err != nil {
		return nil, nil, err
	}
	return cfg, engine, nil
}

func printError(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

func writeJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

func usage() string {
	return strings.TrimSpace(`Usage:
  settlectl <command> [--config file] [flags]

Commands:
  currencies  List supported currencies
  to-base     Convert a decimal amount into base units
  from-base   Convert base units into a decimal amount
  format      Render an amount with its currency symbol
  earnest     Compute the earnest deposit for a purchase price
  fee         Show the transaction fee hint for a currency
  validate    Check an escrow amount against the currency minimum
  convert     Convert an amount between currencies
  simulate    Replay an escrow lifecycle scenario file
`)
}
