package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/types"
	"github.com/plotsync/plotsync/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:     "lock <project> <chapter|scene> <id>",
	GroupID: GroupProject,
	Short:   "Protect a chapter or scene, and everything under it, from edits and sync",
	Args:    cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		setLocked(args, true)
	},
}

var unlockCmd = &cobra.Command{
	Use:     "unlock <project> <chapter|scene> <id>",
	GroupID: GroupProject,
	Short:   "Remove a lock",
	Args:    cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		setLocked(args, false)
	},
}

func setLocked(args []string, locked bool) {
	kind, err := parseKind(args[1], types.KindChapter, types.KindScene)
	if err != nil {
		FatalError("%v", err)
	}
	p := mustProject(args[0])
	if err := newEngine().SetLocked(rootCtx, p.ID, kind, args[2], locked); err != nil {
		fatalSync(err)
	}
	verb := "Unlocked"
	if locked {
		verb = "Locked " + ui.IconLock
	}
	report(map[string]interface{}{"id": args[2], "kind": kind, "locked": locked}, "%s %s %s\n", verb, kind, args[2])
}

var archiveCmd = &cobra.Command{
	Use:     "archive <project> <kind> <id>",
	GroupID: GroupProject,
	Short:   "Archive an item so sync no longer edits it",
	Long: `Archive a chapter, scene, beat or reference. Archived items stay in the
project and still match their source, so sync will not add them again.
Use --undo to restore.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		undo, _ := cmd.Flags().GetBool("undo")
		kind, err := parseKind(args[1])
		if err != nil {
			FatalError("%v", err)
		}
		p := mustProject(args[0])
		if err := newEngine().SetArchived(rootCtx, p.ID, kind, args[2], !undo); err != nil {
			fatalSync(err)
		}
		verb := "Archived"
		if undo {
			verb = "Restored"
		}
		report(map[string]interface{}{"id": args[2], "kind": kind, "archived": !undo}, "%s %s %s\n", verb, kind, args[2])
	},
}

var proseCmd = &cobra.Command{
	Use:     "prose <project> <scene|beat> <id>",
	GroupID: GroupProject,
	Short:   "Set the written prose of a scene or beat",
	Long: `Set the written prose of a scene or beat from a file, or from stdin with
--file -. Sync never reads or overwrites prose. --clear removes it.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		clearProse, _ := cmd.Flags().GetBool("clear")
		if (file == "") == !clearProse {
			FatalError("pass exactly one of --file or --clear")
		}
		kind, err := parseKind(args[1], types.KindScene, types.KindBeat)
		if err != nil {
			FatalError("%v", err)
		}

		var prose *string
		if !clearProse {
			text, err := readProse(file)
			if err != nil {
				FatalError("read prose: %v", err)
			}
			prose = &text
		}

		p := mustProject(args[0])
		if err := newEngine().SetProse(rootCtx, p.ID, kind, args[2], prose); err != nil {
			fatalSync(err)
		}
		n := 0
		if prose != nil {
			n = len(*prose)
		}
		report(map[string]interface{}{"id": args[2], "kind": kind, "bytes": n}, "Saved %d byte(s) of prose on %s %s\n", n, kind, args[2])
	},
}

func readProse(file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(file) // #nosec G304 - user-chosen prose file
	return string(data), err
}

// report prints v as JSON, or the formatted line otherwise.
func report(v interface{}, format string, args ...interface{}) {
	if jsonOutput {
		outputJSON(v)
		return
	}
	if !quietFlag {
		fmt.Printf(format, args...)
	}
}

func init() {
	archiveCmd.Flags().Bool("undo", false, "Restore an archived item")
	proseCmd.Flags().StringP("file", "f", "", "File holding the prose (- for stdin)")
	proseCmd.Flags().Bool("clear", false, "Remove the prose")

	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(proseCmd)
}
