package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

// exportPageSize bounds each store read while exporting.
const exportPageSize = 500

var exportColumns = []string{
	"Name", "Website", "City", "Country", "Stores", "Avg Price EUR", "Avg Price USD",
	"Brand Style", "Made To Measure", "Location Quality", "Final Score", "Status", "Discovered",
}

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export prospects to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		out := args[0]
		city, _ := cmd.Flags().GetString("city")
		status, _ := cmd.Flags().GetString("status")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prospects, err := collectProspects(ctx, st, store.ProspectFilter{
			City:   city,
			Status: model.ProspectStatus(status),
		})
		if err != nil {
			return err
		}

		if err := writeProspectsXLSX(out, prospects); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d prospects to %s\n", len(prospects), out)
		return nil
	},
}

// prospectLister reads one page of prospects.
type prospectLister interface {
	ListProspects(ctx context.Context, filter store.ProspectFilter) ([]model.Prospect, int, error)
}

// collectProspects pages through every prospect matching filter, best
// score first.
func collectProspects(ctx context.Context, st prospectLister, filter store.ProspectFilter) ([]model.Prospect, error) {
	filter.SortBy = "final_score"
	filter.SortOrder = "desc"
	filter.Limit = exportPageSize

	var all []model.Prospect
	for {
		page, total, err := st.ListProspects(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "export: list prospects")
		}
		all = append(all, page...)
		if len(page) < filter.Limit || len(all) >= total {
			return all, nil
		}
		filter.Offset += len(page)
	}
}

// writeProspectsXLSX writes one sheet with a header row and one row per
// prospect.
func writeProspectsXLSX(path string, prospects []model.Prospect) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Prospects")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range exportColumns {
		header.AddCell().SetString(col)
	}

	for _, p := range prospects {
		p.ConvertPrice()
		row := sheet.AddRow()
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.WebsiteURL)
		row.AddCell().SetString(p.City)
		row.AddCell().SetString(p.Country)
		row.AddCell().SetInt(p.StoreCount)
		addPriceCell(row, p.AvgSuitPriceEUR)
		addPriceCell(row, p.AverageSuitPriceUSD)
		row.AddCell().SetString(p.BrandStyle)
		row.AddCell().SetString(madeToMeasure(p.MadeToMeasure))
		row.AddCell().SetString(p.LocationQuality)
		row.AddCell().SetString(strconv.FormatFloat(p.FinalScore, 'f', 1, 64))
		row.AddCell().SetString(string(p.Status))
		row.AddCell().SetString(p.DiscoveredAt.Format("2006-01-02"))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// addPriceCell leaves the cell empty for an unknown price.
func addPriceCell(row *xlsx.Row, v float64) {
	cell := row.AddCell()
	if v > 0 {
		cell.SetString(strconv.FormatFloat(v, 'f', 2, 64))
	}
}

func madeToMeasure(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "Yes"
	}
	return "No"
}

func init() {
	exportCmd.Flags().String("city", "", "only export prospects for this city")
	exportCmd.Flags().String("status", "", "only export prospects with this status (new, contacted, converted, rejected)")
	rootCmd.AddCommand(exportCmd)
}
