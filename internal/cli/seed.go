package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"negopro-questionnaire/internal/config"
	"negopro-questionnaire/internal/infra/postgres"
	"negopro-questionnaire/internal/logging"
	"negopro-questionnaire/internal/schema"
)

// NewSeedCmd stores a questionnaire document in Postgres so it can be served as "db:<id>".
func NewSeedCmd(configPath *string) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Validate a questionnaire document and upsert it into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

			docID, data, err := prepareSeed(args[0], id)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewSchemaLoader(pool).SaveSchema(ctx, docID, data); err != nil {
				return err
			}
			log.Info().Str("id", docID).Str("source", "db:"+docID).Msg("questionnaire seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "questionnaire id (defaults to the document id, then the file name)")
	return cmd
}

// prepareSeed parses the document at path and returns its id and canonical JSON.
func prepareSeed(path, id string) (string, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	s, err := schema.Parse(raw, schema.FormatFor(path, ""))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	if id == "" {
		id = s.ID
	}
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.ID = id
	data, err := json.Marshal(s)
	if err != nil {
		return "", nil, err
	}
	return id, data, nil
}
