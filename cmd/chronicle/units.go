package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lorebind/chronicle/internal/store"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Manage a work's content units",
}

var unitsImportCmd = &cobra.Command{
	Use:   "import <work-id> <dir>",
	Short: "Import content units from text files",
	Long: `Import a work's chapters from a directory of .txt files, one unit per
file. Files are ordered by filename, and that order fixes each unit's
sequence number.

Example:
  chronicle units import my-novel ./chapters/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		workID, dir := args[0], args[1]

		d, err := buildDeps()
		if err != nil {
			return err
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
				continue
			}
			names = append(names, e.Name())
		}
		if len(names) == 0 {
			return fmt.Errorf("no .txt files in %s", dir)
		}
		sort.Strings(names)

		units := make([]*store.ContentUnit, 0, len(names))
		for i, name := range names {
			body, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			units = append(units, &store.ContentUnit{
				ID:     uuid.NewString(),
				WorkID: workID,
				SeqNum: i + 1,
				Title:  strings.TrimSuffix(name, ".txt"),
				Body:   string(body),
				Status: store.UnitPending,
			})
		}

		if err := d.store.CreateUnits(units); err != nil {
			return err
		}
		fmt.Printf("imported %d units into work %s\n", len(units), workID)
		return nil
	},
}

var unitsListCmd = &cobra.Command{
	Use:   "list <work-id>",
	Short: "List a work's content units",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		units, err := d.store.UnitsByWork(args[0])
		if err != nil {
			return err
		}
		if len(units) == 0 {
			fmt.Println("no units")
			return nil
		}

		fmt.Printf("%-4s  %-30s  %-11s  %-10s  %s\n", "SEQ", "TITLE", "STATUS", "SIZE", "TRANSLATED")
		for _, u := range units {
			translated := "-"
			if u.TranslatedBody != "" {
				translated = "yes"
			} else if u.PartialOutput != "" {
				translated = fmt.Sprintf("chunk %d", u.ChunkIndex)
			}
			fmt.Printf("%-4d  %-30s  %-11s  %-10d  %s\n",
				u.SeqNum, u.Title, u.Status, len(u.Body), translated)
		}
		return nil
	},
}

func init() {
	unitsCmd.AddCommand(unitsImportCmd)
	unitsCmd.AddCommand(unitsListCmd)
}
