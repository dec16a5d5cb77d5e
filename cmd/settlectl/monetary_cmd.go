package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"propertyescrow/native/monetary"
)

type currencyResult struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Decimals    uint8  `json:"decimals"`
	Native      bool   `json:"native"`
	ContractRef string `json:"contractRef,omitempty"`
	Minimum     string `json:"minimum"`
}

func runCurrencies(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("currencies", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	supported := engine.Supported()
	out := make([]currencyResult, 0, len(supported))
	for _, desc := range supported {
		out = append(out, currencyResult{
			Symbol:      desc.Symbol.String(),
			Name:        desc.Name,
			Description: desc.Description,
			Decimals:    desc.Decimals,
			Native:      desc.Native,
			ContractRef: desc.ContractRef,
			Minimum:     desc.MinimumTransactable.String(),
		})
	}
	return writeJSON(stdout, out)
}

func requireFlags(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, "--"+pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseBaseUnits(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", monetary.ErrInvalidAmount, raw)
	}
	return v, nil
}

func runToBase(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("to-base", stderr)
	amount := fs.String("amount", "", "decimal amount")
	currency := fs.String("currency", "", "currency symbol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireFlags("amount", *amount, "currency", *currency); err != nil {
		return printError(stderr, err)
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	units, err := engine.ToBaseUnits(*amount, monetary.Symbol(*currency))
	if err != nil {
		return printError(stderr, err)
	}
	return writeJSON(stdout, map[string]string{"currency": *currency, "baseUnits": units.String()})
}

func runFromBase(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("from-base", stderr)
	amount := fs.String("amount", "", "integer amount in base units")
	currency := fs.String("currency", "", "currency symbol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireFlags("amount", *amount, "currency", *currency); err != nil {
		return printError(stderr, err)
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	units, err := parseBaseUnits(*amount)
	if err != nil {
		return printError(stderr, err)
	}
	value, err := engine.FromBaseUnits(units, monetary.Symbol(*currency))
	if err != nil {
		return printError(stderr, err)
	}
	return writeJSON(stdout, map[string]string{"currency": *currency, "amount": value})
}

func runFormat(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("format", stderr)
	amount := fs.String("amount", "", "amount to render")
	currency := fs.String("currency", "", "currency symbol")
	base := fs.Bool("base", false, "treat --amount as base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	return writeJSON(stdout, map[string]string{
		"formatted": engine.FormatCurrency(*amount, monetary.Symbol(*currency), *base),
	})
}

func runEarnest(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("earnest", stderr)
	price := fs.String("price", "", "purchase price in base units")
	percent := fs.String("percent", "", "earnest percentage (default from config)")
	currency := fs.String("currency", "", "currency symbol for a formatted result")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireFlags("price", *price); err != nil {
		return printError(stderr, err)
	}
	cfg, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	units, err := parseBaseUnits(*price)
	if err != nil {
		return printError(stderr, err)
	}
	pctRaw := *percent
	if strings.TrimSpace(pctRaw) == "" {
		pctRaw = cfg.Escrow.EarnestPercent
	}
	pct, err := monetary.ParseAmount(pctRaw)
	if err != nil {
		return printError(stderr, err)
	}
	earnest, err := monetary.CalculateEarnestMoney(units, pct)
	if err != nil {
		return printError(stderr, err)
	}
	out := map[string]string{"percent": pct.String(), "earnestMoney": earnest.String()}
	if *currency != "" {
		out["formatted"] = engine.FormatBaseUnits(earnest, monetary.Symbol(*currency))
	}
	return writeJSON(stdout, out)
}

type feeResult struct {
	FeeCurrency  string `json:"feeCurrency"`
	FeeAmount    string `json:"feeAmount"`
	FeeBaseUnits string `json:"feeBaseUnits"`
	Description  string `json:"description"`
}

func runFee(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("fee", stderr)
	currency := fs.String("currency", "", "currency being transferred")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireFlags("currency", *currency); err != nil {
		return printError(stderr, err)
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	fee, err := engine.EstimateTransactionFee(monetary.Symbol(*currency))
	if err != nil {
		return printError(stderr, err)
	}
	return writeJSON(stdout, feeResult{
		FeeCurrency:  fee.FeeCurrency.String(),
		FeeAmount:    fee.FeeAmount,
		FeeBaseUnits: fee.FeeBaseUnits.String(),
		Description:  fee.Description,
	})
}

type validationResult struct {
	Valid   bool   `json:"valid"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("validate", stderr)
	amount := fs.String("amount", "", "decimal amount")
	currency := fs.String("currency", "", "currency symbol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	v := engine.ValidateEscrowAmount(*amount, monetary.Symbol(*currency))
	code := writeJSON(stdout, validationResult{Valid: v.Valid, Kind: string(v.Kind()), Message: v.Message})
	if !v.Valid {
		return 1
	}
	return code
}

func runConvert(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("convert", stderr)
	amount := fs.String("amount", "", "decimal amount")
	from := fs.String("from", "", "source currency")
	to := fs.String("to", "", "target currency")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireFlags("amount", *amount, "from", *from, "to", *to); err != nil {
		return printError(stderr, err)
	}
	_, engine, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	converted, err := engine.ConvertCurrency(*amount, monetary.Symbol(*from), monetary.Symbol(*to))
	if err != nil {
		if errors.Is(err, monetary.ErrNoExchangeRate) {
			return printError(stderr, fmt.Errorf("%w (configure [rates] pairs)", err))
		}
		return printError(stderr, err)
	}
	return writeJSON(stdout, map[string]string{"from": *from, "to": *to, "amount": converted})
}
