package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/session"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// writeVariants prints the variant catalog, one row per variant
func writeVariants(w io.Writer, variants []engine.Variant, defaultName string) {
	table := newTable(w, []string{"Name", "Board", "Connect", "Players", "Description"})
	for _, v := range variants {
		name := v.Name
		if name == defaultName {
			name += " *"
		}
		table.Append([]string{
			name,
			fmt.Sprintf("%dx%d", v.Width, v.Height),
			strconv.Itoa(v.Connect),
			strconv.Itoa(v.Players),
			v.Description,
		})
	}
	table.Render()
}

// writeResults prints finished matches
func writeResults(w io.Writer, results []session.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}

	table := newTable(w, []string{"ID", "Completed", "Roster", "Outcome"})
	for _, r := range results {
		outcome := "draw"
		if !r.Draw {
			outcome = r.Winner + " won"
		}
		table.Append([]string{
			r.ID,
			r.CompletedAt.UTC().Format(time.RFC3339),
			strings.Join(r.Roster, ", "),
			outcome,
		})
	}
	table.Render()
}

// validateVariantFiles checks each *.json file in dir and prints one line per
// file. It returns how many files failed.
func validateVariantFiles(w io.Writer, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("error finding variant files: %w", err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no variant files in %s", dir)
	}

	invalid := 0
	for _, file := range files {
		v, err := engine.LoadVariant(file)
		if err != nil {
			invalid++
			fmt.Fprintf(w, "INVALID %s: %v\n", filepath.Base(file), err)
			continue
		}
		fmt.Fprintf(w, "ok      %s: %s, %dx%d, connect %d, %d players\n",
			filepath.Base(file), v.Name, v.Width, v.Height, v.Connect, v.Players)
	}
	return invalid, nil
}
