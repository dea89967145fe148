package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status   *StatusCommand
	Add      *AddCommand
	Predict  *PredictCommand
	Preload  *PreloadCommand
	Feedback *FeedbackCommand
	Ingest   *IngestCommand
	Prune    *PruneCommand
	Purge    *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "foresight"
	parser.LongDescription = "Local next-page prediction and connection preloading from your browsing history."

	cmds := &commands{
		Status:   &StatusCommand{globals: &globals, version: version},
		Add:      &AddCommand{globals: &globals, version: version},
		Predict:  &PredictCommand{globals: &globals, version: version},
		Preload:  &PreloadCommand{globals: &globals, version: version},
		Feedback: &FeedbackCommand{globals: &globals, version: version},
		Ingest:   &IngestCommand{globals: &globals, version: version},
		Prune:    &PruneCommand{globals: &globals, version: version},
		Purge:    &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show history and preload statistics", "Show history statistics, preload settings, and daemon health.", cmds.Status)
	parser.AddCommand("add", "Record a visit", "Manually record a visit to a URL.", cmds.Add)
	parser.AddCommand("predict", "Predict the next pages", "Rank likely next pages for the given browsing context.", cmds.Predict)
	parser.AddCommand("preload", "Warm connections for predicted pages", "Predict from the current page and warm connections to the top results.", cmds.Preload)
	parser.AddCommand("feedback", "Rate a prediction", "Record whether a predicted page turned out to be useful.", cmds.Feedback)
	parser.AddCommand("ingest", "Start the foresight daemon", "Start the foresight daemon (local HTTP service).", cmds.Ingest)
	parser.AddCommand("prune", "Apply retention pruning", "Delete history last visited before the retention period.", cmds.Prune)
	parser.AddCommand("purge", "Delete ALL foresight data", "Delete ALL foresight data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the foresight CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("foresight %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
