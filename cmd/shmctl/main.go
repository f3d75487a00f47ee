// shmctl inspects a live shared-state pool from outside the worker pool.
// It only attaches: a missing region means no pool is running.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shmstate-org/shmstate/pkg/app"
	"github.com/shmstate-org/shmstate/pkg/config"
)

const usage = `usage: shmctl [flags] <command>

commands:
  logs              print the last -n shared log entries
  counter           print the total log-event counter
  attempts [ip]     print recorded login attempts, optionally for one IP
  settings <path>   resolve a dot-separated settings field
  pids              print the registered worker roster
  boot              print the pool boot time
  shutdown          raise the shared shutdown flag
`

func main() {
	n := flag.Int("n", 20, "number of log entries to print")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Println("❌ Failed to load config:", err)
		os.Exit(1)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	a, err := app.Open(cfg, false)
	if err != nil {
		fmt.Println("❌ Failed to attach, is the pool running?", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(a, flag.Arg(0), flag.Args()[1:], *n); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

func run(a *app.App, command string, args []string, n int) error {
	switch command {
	case "logs":
		entries, err := a.Logs.ReadLast(n)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s.%03d %5d [%s] %s %s: %s\n",
				e.Time.Format("2006-01-02 15:04:05"), e.Time.Nanosecond()/1e6,
				e.Process, e.SessionID, e.Level, e.Module, e.Message)
		}
		return nil

	case "counter":
		count, err := a.Logs.Count()
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil

	case "attempts":
		attempts, err := a.Auth.Attempts(0)
		if err != nil {
			return err
		}
		for _, at := range attempts {
			if len(args) > 0 && at.IP != args[0] {
				continue
			}
			status := "FAIL"
			if at.Success {
				status = "OK"
			}
			line := fmt.Sprintf("%s %-15s %s %s",
				time.Unix(at.Timestamp, 0).Format(time.RFC3339), at.IP, status, at.Username)
			if at.UnlockTime > 0 {
				line += fmt.Sprintf(" (banned until %s)", time.Unix(at.UnlockTime, 0).Format(time.RFC3339))
			}
			fmt.Println(line)
		}
		return nil

	case "settings":
		if len(args) < 1 {
			return fmt.Errorf("settings requires a dot-separated field path")
		}
		value, ok, err := a.Settings.Field(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("settings field %q not found", args[0])
		}
		fmt.Printf("%v\n", value)
		return nil

	case "pids":
		pids, err := a.Barrier.Pids()
		if err != nil {
			return err
		}
		fmt.Println(pids)
		return nil

	case "boot":
		bt, err := a.BootTime()
		if err != nil {
			return err
		}
		if bt.IsZero() {
			fmt.Println("boot time not set")
			return nil
		}
		fmt.Printf("%s (up %s)\n", bt.Format(time.RFC3339), time.Since(bt).Round(time.Second))
		return nil

	case "shutdown":
		if err := a.RequestShutdown(); err != nil {
			return err
		}
		fmt.Println("shutdown flag raised")
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
