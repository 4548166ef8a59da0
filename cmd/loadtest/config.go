package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type loadMode string

const (
	modeCreate             loadMode = "create"
	modeCreateCancel       loadMode = "create-cancel"
	modeCreateCancelDelete loadMode = "create-cancel-delete"
)

func parseMode(value string) (loadMode, error) {
	switch m := loadMode(strings.TrimSpace(value)); m {
	case modeCreate, modeCreateCancel, modeCreateCancelDelete:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// options параметры прогона из командной строки.
type options struct {
	target     string
	scenarios  int
	capped     bool // -total задан явно
	runFor     time.Duration
	workers    int
	conns      int
	rpcTimeout time.Duration
	mode       loadMode
	cancelPct  int

	branch         string
	product        string
	quantity       int
	unitPrice      decimal.Decimal
	customerPrefix string

	reportPath string
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	opts := options{
		mode:      modeCreate,
		unitPrice: decimal.NewFromInt(10),
	}

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.target, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&opts.scenarios, "total", 400, "scenarios to run; with -duration acts as an upper bound")
	fs.DurationVar(&opts.runFor, "duration", 0, "run for a fixed time instead of a fixed count (e.g. 10m)")
	fs.IntVar(&opts.workers, "concurrency", 40, "scenarios in flight")
	fs.IntVar(&opts.conns, "connections", 20, "gRPC client connections")
	fs.DurationVar(&opts.rpcTimeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.Func("mode", "create | create-cancel | create-cancel-delete", func(v string) (err error) {
		opts.mode, err = parseMode(v)
		return err
	})
	fs.IntVar(&opts.cancelPct, "cancel-rate", 0, "share of cancelled sales in create mode, percent")
	fs.StringVar(&opts.branch, "branch", "branch-load", "sale branch")
	fs.StringVar(&opts.product, "product", "product-load", "sale item product")
	fs.IntVar(&opts.quantity, "quantity", 5, "sale item quantity (1..20)")
	fs.Func("unit-price", "sale item unit price (default 10)", func(v string) (err error) {
		opts.unitPrice, err = decimal.NewFromString(strings.TrimSpace(v))
		return err
	})
	fs.StringVar(&opts.customerPrefix, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&opts.reportPath, "output", "", "write JSON report to this file")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			opts.capped = true
		}
	})
	return opts, opts.validate()
}

// validate собирает все нарушения сразу.
func (o options) validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	check(o.runFor < 0, "duration must be >= 0")
	check(o.runFor == 0 && o.scenarios <= 0, "total must be > 0 when duration is not set")
	check(o.runFor > 0 && o.capped && o.scenarios <= 0, "total must be > 0 when explicitly set with duration")
	check(o.workers <= 0, "concurrency must be > 0")
	check(o.conns <= 0, "connections must be > 0")
	check(o.rpcTimeout <= 0, "timeout must be > 0")
	check(o.quantity < 1 || o.quantity > 20, "quantity must be between 1 and 20")
	check(!o.unitPrice.IsPositive(), "unit-price must be > 0")
	check(o.cancelPct < 0 || o.cancelPct > 100, "cancel-rate must be between 0 and 100")
	check(strings.TrimSpace(o.branch) == "", "branch is required")
	check(strings.TrimSpace(o.product) == "", "product is required")
	check(strings.TrimSpace(o.customerPrefix) == "", "customer-tag is required")

	return errors.Join(errs...)
}

// more сообщает, нужно ли запускать сценарий с номером i.
func (o options) more(i int, deadline time.Time) bool {
	if o.runFor <= 0 {
		return i < o.scenarios
	}
	if o.capped && i >= o.scenarios {
		return false
	}
	return time.Now().Before(deadline)
}

func (o options) describe() string {
	switch {
	case o.runFor <= 0:
		return fmt.Sprintf("count:%d", o.scenarios)
	case o.capped:
		return fmt.Sprintf("duration:%s,max-total:%d", o.runFor, o.scenarios)
	default:
		return fmt.Sprintf("duration:%s", o.runFor)
	}
}

// cancels решает, отменять ли продажу сценария i.
func (o options) cancels(i int) bool {
	switch o.mode {
	case modeCreateCancel, modeCreateCancelDelete:
		return true
	}
	return i%100 < o.cancelPct
}
