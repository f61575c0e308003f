package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/infrastructure/imaging"
)

func newIdentifyCmd(opts *rootOptions) *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "identify [token...]",
		Short: "Identify a book from cover text or a cover photo",
		Long: `Identify resolves cover text to a catalog record. Tokens are the lines
read off the cover, most prominent first.

With --image and no tokens the photo is read by the vision model first. With
both, the photo is compared with the covers of the closest candidates.`,
		Example: `  booklens identify "The Remains" "of the Day" "Kazuo Ishiguro"
  booklens identify --image cover.jpg
  booklens identify --image cover.jpg -o json "Remains of the Day"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && imagePath == "" {
				return fmt.Errorf("give at least one token or --image")
			}
			if err := validateFormat(opts.output); err != nil {
				return err
			}

			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var photo *domain.ImageHandle
			if imagePath != "" {
				img, err := readImageFile(imagePath, cfg.Image.MaxBytes)
				if err != nil {
					return err
				}
				photo = &img
			}

			svc, err := buildServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			var identification *domain.Identification
			if len(args) > 0 {
				identification, err = svc.identifier.IdentifyFromTokens(cmd.Context(), args, photo)
			} else {
				identification, err = svc.identifier.IdentifyFromImage(cmd.Context(), *photo)
			}
			if err != nil {
				return err
			}

			return writeIdentification(cmd.OutOrStdout(), opts.output, identification)
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Cover photo (jpeg, png, gif or webp)")

	return cmd
}

func readImageFile(path string, maxBytes int64) (domain.ImageHandle, error) {
	if maxBytes <= 0 {
		maxBytes = imaging.DefaultMaxBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := imaging.ReadImage(f, maxBytes)
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
