package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"yaad/internal/library"
	"yaad/internal/media"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var user int64
	var typeFlag string
	var offers bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(false)
			if err != nil {
				return err
			}
			defer pipeline.Close()
			out := cmd.OutOrStdout()

			var types []media.Type
			if typeFlag != "" {
				parsed, ok := media.ParseType(typeFlag)
				if !ok {
					return fmt.Errorf("unknown media type %q", typeFlag)
				}
				types = append(types, parsed)
			}

			items, err := pipeline.service.ListByUser(cmd.Context(), user, types...)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Library is empty")
				return nil
			}

			if offers && pipeline.justwatch == nil {
				return fmt.Errorf("streaming offers need [justwatch] enabled in the configuration")
			}

			columns := []column{
				{title: "ID", numeric: true},
				{title: "Type"},
				{title: "Title"},
				{title: "Year", numeric: true},
				{title: "Status"},
				{title: "Rating", numeric: true},
			}
			if offers {
				columns = append(columns, column{title: "Streaming"})
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				row := []string{
					strconv.FormatInt(item.ID, 10),
					string(item.Type),
					item.Title,
					zeroBlank(item.Year),
					string(item.Status),
					ratingLabel(item.Rating),
				}
				if offers {
					row = append(row, streamingLabel(cmd, pipeline, item))
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(out, renderTable(columns, rows))

			counts, err := pipeline.service.Counts(cmd.Context(), user)
			if err == nil {
				fmt.Fprintln(out, countsLine(counts))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&user, "user", 1, "Library user id")
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "Filter by media type (film, series, book, video, podcast)")
	cmd.Flags().BoolVar(&offers, "offers", false, "Look up streaming availability for films and series")
	return cmd
}

// streamingLabel asks the availability catalog where an item can be watched.
// Lookups never fail the listing; anything unresolvable renders blank.
func streamingLabel(cmd *cobra.Command, pipeline *pipeline, item *library.Item) string {
	if item.Type != media.TypeFilm && item.Type != media.TypeSeries {
		return ""
	}
	tmdbID, err := strconv.Atoi(item.ExternalID)
	if err != nil {
		return ""
	}
	found := pipeline.justwatch.OffersFor(cmd.Context(), tmdbID, item.Type, item.Title, item.Year)
	if len(found) == 0 {
		return ""
	}
	names := make([]string, 0, len(found))
	for _, offer := range found {
		names = append(names, offer.ProviderName)
	}
	return strings.Join(names, ", ")
}

func zeroBlank(value int) string {
	if value == 0 {
		return ""
	}
	return strconv.Itoa(value)
}

func ratingLabel(rating float64) string {
	if rating == 0 {
		return ""
	}
	return strconv.FormatFloat(rating, 'f', -1, 64)
}

func countsLine(counts map[media.Type]int) string {
	order := []media.Type{media.TypeFilm, media.TypeSeries, media.TypeBook, media.TypeVideo, media.TypePodcast, media.TypeShow}
	parts := make([]string, 0, len(order))
	total := 0
	for _, t := range order {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
			total += counts[t]
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("%d items (%s)", total, strings.Join(parts, ", "))
}
