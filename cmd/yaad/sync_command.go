package main

import (
	"github.com/spf13/cobra"

	"yaad/internal/imports"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync with an external platform",
	}
	syncCmd.AddCommand(newSyncLetterboxdCommand(ctx))
	syncCmd.AddCommand(newSyncKoboCommand(ctx))
	syncCmd.AddCommand(newSyncJellyfinCommand(ctx))
	syncCmd.AddCommand(newSyncYouTubeCommand(ctx))
	return syncCmd
}

func newSyncLetterboxdCommand(ctx *commandContext) *cobra.Command {
	var flags importFlags
	var username string
	var watchlist bool

	cmd := &cobra.Command{
		Use:   "letterboxd",
		Short: "Pull a member's recent diary feed, or their watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(true)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			driver := imports.NewLetterboxd(pipeline.cfg.Import.PageCeiling, pipeline.limiter, pipeline.logger)
			fetch := driver.FetchFeed
			if watchlist {
				fetch = driver.FetchWatchlist
			}
			entries, err := fetch(cmd.Context(), username)
			if err != nil {
				return err
			}
			return runBatch(cmd, pipeline, flags, entries, nil)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&username, "username", "u", "", "Letterboxd username")
	cmd.Flags().BoolVar(&watchlist, "watchlist", false, "Scrape the watchlist instead of the diary feed")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSyncKoboCommand(ctx *commandContext) *cobra.Command {
	var user int64

	cmd := &cobra.Command{
		Use:   "kobo",
		Short: "Sync reading progress from the e-reader library",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(true)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			driver, err := imports.NewKobo(pipeline.cfg.Kobo, pipeline.store, pipeline.service,
				pipeline.engine, pipeline.limiter, pipeline.logger)
			if err != nil {
				return err
			}
			result, err := driver.Sync(cmd.Context(), user)
			printResult(cmd.OutOrStdout(), result)
			return err
		},
	}
	cmd.Flags().Int64Var(&user, "user", 1, "Library user id")
	return cmd
}

func newSyncYouTubeCommand(ctx *commandContext) *cobra.Command {
	var user int64

	cmd := &cobra.Command{
		Use:   "youtube",
		Short: "Mirror the watch-later playlist, removing finished videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(true)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			driver, err := imports.NewYouTubeSync(pipeline.cfg.YouTubeSync, pipeline.store, pipeline.service,
				pipeline.limiter, pipeline.logger)
			if err != nil {
				return err
			}
			result, err := driver.Sync(cmd.Context(), user)
			printResult(cmd.OutOrStdout(), result)
			return err
		},
	}
	cmd.Flags().Int64Var(&user, "user", 1, "Library user id")
	return cmd
}

func newSyncJellyfinCommand(ctx *commandContext) *cobra.Command {
	var user int64

	cmd := &cobra.Command{
		Use:   "jellyfin",
		Short: "Sync watched state with the media server, both directions",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(true)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			driver, err := imports.NewJellyfin(pipeline.cfg.Jellyfin, pipeline.store, pipeline.service,
				pipeline.limiter, pipeline.logger)
			if err != nil {
				return err
			}
			result, err := driver.Sync(cmd.Context(), user)
			printResult(cmd.OutOrStdout(), result)
			return err
		},
	}
	cmd.Flags().Int64Var(&user, "user", 1, "Library user id")
	return cmd
}
