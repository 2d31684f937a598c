package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/thatsimonsguy/panel-provisioner/db"
	"github.com/thatsimonsguy/panel-provisioner/internal/pinmap"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, modelName string
	var limit int
	flag.StringVar(&dbPath, "db", "data/pushes.db", "Path to the push history database")
	flag.StringVar(&command, "cmd", "", "Command to run: models, pins, history")
	flag.StringVar(&modelName, "model", pinmap.ModelKonnectedPro, "Panel model for the pins command")
	flag.IntVar(&limit, "limit", 10, "Number of pushes to show for the history command")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of panel-debug:")
		fmt.Println("  -db string\tPath to the push history database (default 'data/pushes.db')")
		fmt.Println("  -cmd string\tCommand to run: models, pins, history")
		fmt.Println("  -model string\tPanel model for the pins command (default 'Konnected Pro')")
		fmt.Println("  -limit int\tNumber of pushes to show for the history command (default 10)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "models":
		for _, m := range pinmap.Models() {
			fmt.Println(m)
		}
	case "pins":
		err = printPins(modelName)
	case "history":
		err = printHistory(dbPath, limit)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func printPins(modelName string) error {
	table, err := pinmap.New(modelName)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d pins, designator key %q)\n", table.ModelName(), table.PinCount(), table.DesignatorFieldName())
	for i := 0; i < table.PinCount(); i++ {
		c, err := table.Capability(i)
		if err != nil {
			return err
		}
		fns := make([]string, len(c.AllowedFunctions))
		for j, fn := range c.AllowedFunctions {
			fns[j] = string(fn)
		}
		fmt.Printf("%2d  %-12s %-12s %-12s selectable=%-5t %s\n",
			i, c.Designator, c.Label, c.Category, c.UserSelectable, strings.Join(fns, ","))
	}
	return nil
}

func printHistory(dbPath string, limit int) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	records, err := db.GetPushHistory(conn, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No pushes recorded")
		return nil
	}

	for _, r := range records {
		status := "ok"
		if r.DryRun {
			status = "dry-run"
		}
		if r.Error != "" {
			status = "failed: " + r.Error
		}
		fmt.Printf("%s  %s  %s  %s  %s\n", r.PushedAt.Local().Format("2006-01-02 15:04:05"), r.ID, r.ModelName, r.URLBase, status)
	}
	return nil
}
