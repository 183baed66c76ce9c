package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/payflow/internal/app"
	"github.com/R3E-Network/payflow/internal/cli"
)

func init() {
	register(
		command{name: "rates", summary: "Show exchange rates or convert an amount", public: true, run: runRates},
		command{name: "daemon", summary: "Keep the session fresh and serve state over HTTP", public: true, run: runDaemon},
		command{name: "completion", summary: "Print or install a shell completion script", local: true, run: runCompletion},
	)
}

func runRates(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "rates", "[--from CODE --to CODE [--amount AMOUNT]]")
	from := fs.String("from", "", "base currency")
	to := fs.String("to", "", "target currency")
	rawAmount := fs.String("amount", "", "amount to convert")
	if err := parse(fs, args); err != nil {
		return err
	}
	rates := e.app.Rates

	if *from == "" && *to == "" {
		if err := rates.LoadRates(ctx); err != nil {
			return err
		}
		list := rates.Snapshot().Data.Rates
		if len(list) == 0 {
			e.out.Info("No exchange rates published")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, r := range list {
			rows = append(rows, []string{r.BaseCurrency, r.TargetCurrency, r.Rate.String()})
		}
		e.out.Table([]string{"FROM", "TO", "RATE"}, rows)
		return nil
	}
	if *from == "" || *to == "" {
		return errors.New("--from and --to go together")
	}

	if *rawAmount != "" {
		amount, err := parseAmount(*rawAmount)
		if err != nil {
			return err
		}
		converted, err := rates.Convert(ctx, amount, *from, *to)
		if err != nil {
			return err
		}
		e.out.Field(strings.ToUpper(*from), amount.StringFixed(2))
		e.out.Field(strings.ToUpper(*to), converted.StringFixed(2))
		return nil
	}

	r, err := rates.LoadRate(ctx, *from, *to)
	if err != nil {
		return err
	}
	e.out.Field("Rate", fmt.Sprintf("1 %s = %s %s", r.BaseCurrency, r.Rate, r.TargetCurrency))
	if r.LastUpdated != nil {
		e.out.Field("Updated", r.LastUpdated.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runDaemon(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "daemon", "")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := app.NewDaemon(e.app)
	if err != nil {
		return err
	}
	if !e.app.Session.IsAuthenticated() {
		e.out.Warning("Not logged in; store refresh waits for `payflow login`")
	}
	e.out.Info(fmt.Sprintf("Serving state on %s (refresh %s, %d recent transactions)",
		e.app.Config.Daemon.ListenAddr, e.app.Config.Daemon.RefreshSchedule, e.app.Config.Daemon.RecentLimit))
	return d.Run(ctx)
}

func runCompletion(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "completion", "[--install] bash|zsh|fish")
	install := fs.Bool("install", false, "write the script to the shell's completion directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}
	shell := fs.Arg(0)

	if *install {
		path, err := cli.InstallCompletion(shell, prog, sortedCommands())
		if err != nil {
			return err
		}
		e.out.Success("Installed completion to " + path)
		return nil
	}
	return cli.GenerateCompletion(e.out.Out(), shell, prog, sortedCommands())
}
