package main

import (
	"fmt"
	"os"
)

var AppVersion string

const usage = `Usage: silo-runners <command> [flags]

Commands:
  provision     Provision a runner and print its configuration command
  list          List runners visible to the caller
  get           Show a single runner
  deprovision   Remove a runner
  sync          Trigger a reconciliation cycle (admin)
  version       Print the client version

Every command accepts --server and --token. They default to the
SILO_RUNNERS_SERVER and SILO_RUNNERS_TOKEN environment variables.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "provision":
		err = runProvision(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "deprovision":
		err = runDeprovision(os.Args[2:])
	case "sync":
		err = runSync(os.Args[2:])
	case "version":
		fmt.Println(AppVersion)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
