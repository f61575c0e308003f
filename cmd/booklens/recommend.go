package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/booklens/backend/internal/domain"
)

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var (
		question  string
		ownedPath string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend books verified against the catalog",
		Long: `Recommend asks the language model for books and keeps only those the
catalog confirms.

With --question the answer is tailored to the question and may point at
books you already own. With only --owned, new books similar to the owned
list are suggested.

The owned list is a YAML sequence:

  - id: "9780571258093"
    title: Never Let Me Go
    author: Kazuo Ishiguro`,
		Example: `  booklens recommend -q "quiet novels about memory"
  booklens recommend --owned shelf.yaml
  booklens recommend -q "something for a long flight" --owned shelf.yaml -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(opts.output); err != nil {
				return err
			}

			var owned []domain.OwnedBook
			if ownedPath != "" {
				books, err := loadOwnedBooks(ownedPath)
				if err != nil {
					return err
				}
				owned = books
			}

			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			svc, err := buildServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.recommender.Recommend(cmd.Context(), domain.RecommendationRequest{
				Question:   question,
				OwnedBooks: owned,
			})
			if err != nil {
				return err
			}

			return writeRecommendation(cmd.OutOrStdout(), opts.output, result)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "What you are looking for")
	cmd.Flags().StringVar(&ownedPath, "owned", "", "YAML file listing books you own")

	return cmd
}

func loadOwnedBooks(path string) ([]domain.OwnedBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read owned books: %w", err)
	}

	var books []domain.OwnedBook
	if err := yaml.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("parse owned books %s: %w", path, err)
	}
	for i, book := range books {
		if book.Title == "" {
			return nil, fmt.Errorf("owned book %d in %s has no title", i+1, path)
		}
	}
	return books, nil
}
