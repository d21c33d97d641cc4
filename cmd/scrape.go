package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/logging"
)

// newScrapeCmd creates the 'scrape' subcommand, which enriches one catalog film.
func newScrapeCmd() *cobra.Command {
	var (
		imdbID string
		filmID int64
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape one IMDb title into an existing catalog film",
		Long: `Fetches the IMDb title page for --imdb, parses it and ingests the result
into the catalog row --film. Prints ok=true on success. Queued avatars are
processed before the command exits.`,
		Example: "filmscraper scrape --imdb tt0111161 --film 12",
		RunE: appRunE(func(cmd *cobra.Command, appInstance App) error {
			logger := appInstance.Logger().With(logging.FilmFields(filmID, imdbID)...)

			avatars, err := appInstance.ScrapeOnce(cmd.Context(), imdbID, filmID)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "ok=false kind=%s\n", catalog.Kind(err))
				return fmt.Errorf("scrape %s: %w", imdbID, err)
			}
			logger.Info("scrape command finished", zap.Int("avatars", avatars))
			fmt.Fprintf(cmd.OutOrStdout(), "ok=true avatars=%d\n", avatars)
			return nil
		}),
	}
	cmd.Flags().StringVar(&imdbID, "imdb", "", "IMDb title id, e.g. tt0111161")
	cmd.Flags().Int64Var(&filmID, "film", 0, "catalog film id to update")
	_ = cmd.MarkFlagRequired("imdb")
	_ = cmd.MarkFlagRequired("film")
	return cmd
}
