package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/klauspost/pgzip"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/storage/postgres"
)

// catalogEntry is one course of a seed catalog. Price is in minor units.
// Slugs end up in order notes, so they must not contain the note
// separator.
type catalogEntry struct {
	ID    string `yaml:"id" validate:"required,max=128"`
	Slug  string `yaml:"slug" validate:"required,max=128,excludesall=0x7C"`
	Title string `yaml:"title" validate:"required,max=256"`
	Price int64  `yaml:"price" validate:"gt=0"`
}

type catalog struct {
	Courses []catalogEntry `yaml:"courses" validate:"required,min=1,dive"`
}

// readCatalog reads a YAML or JSON catalog, gzip-compressed when the name
// ends in .gz.
func readCatalog(path string) ([]course.Course, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	courses, err := parseCatalog(r)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return courses, nil
}

// parseCatalog decodes and validates a catalog. JSON input works as well,
// being a subset of YAML.
func parseCatalog(r io.Reader) ([]course.Course, error) {
	var c catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	ids := make(map[string]struct{}, len(c.Courses))
	slugs := make(map[string]struct{}, len(c.Courses))
	out := make([]course.Course, 0, len(c.Courses))
	for _, e := range c.Courses {
		if _, dup := ids[e.ID]; dup {
			return nil, errors.Errorf("duplicate course id %q", e.ID)
		}
		if _, dup := slugs[e.Slug]; dup {
			return nil, errors.Errorf("duplicate course slug %q", e.Slug)
		}
		ids[e.ID] = struct{}{}
		slugs[e.Slug] = struct{}{}
		out = append(out, course.Course{ID: e.ID, Slug: e.Slug, Title: e.Title, Price: e.Price})
	}
	return out, nil
}

// priceCollisions groups course ids sharing a price. Payments for such
// courses can only be resolved through the order note.
func priceCollisions(courses []course.Course) map[int64][]string {
	byPrice := make(map[int64][]string)
	for _, c := range courses {
		byPrice[c.Price] = append(byPrice[c.Price], c.ID)
	}
	for price, ids := range byPrice {
		if len(ids) < 2 {
			delete(byPrice, price)
		}
	}
	return byPrice
}

// courseStore is the part of the course repository used by seeding.
type courseStore interface {
	Upsert(ctx context.Context, c course.Course) error
}

func seedCourses(ctx context.Context, store courseStore, courses []course.Course) error {
	lg := zctx.From(ctx)
	for price, ids := range priceCollisions(courses) {
		lg.Warn("Courses share a price, amount-based resolution will pick the oldest",
			zap.Int64("price", price),
			zap.Strings("course_ids", ids),
		)
	}
	for _, c := range courses {
		if err := store.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert course %s", c.ID)
		}
		lg.Info("Upserted course",
			zap.String("id", c.ID),
			zap.String("slug", c.Slug),
			zap.Int64("price", c.Price),
		)
	}
	return nil
}

func seedCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "seed <catalog.yaml|catalog.json[.gz]>",
		Short: "Upsert the course catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courses, err := readCatalog(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if migrate {
				if err := postgres.RunMigrations(ctx, pool); err != nil {
					return errors.Wrap(err, "run migrations")
				}
			}
			return seedCourses(ctx, postgres.NewCourseRepository(pool), courses)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the schema first")
	return cmd
}

func coursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List the course catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			list, err := postgres.NewCourseRepository(pool).List(ctx)
			if err != nil {
				return errors.Wrap(err, "list courses")
			}
			out := cmd.OutOrStdout()
			for _, c := range list {
				fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", c.ID, c.Slug, c.Price, c.Title)
			}
			return nil
		},
	}
}
