package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cashflow-tracker/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

var v = viper.New()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply BigQuery schema migrations",
		SilenceUsage: true,
		RunE:         runUp,
	}

	flags := cmd.PersistentFlags()
	flags.String("project", "", "GCP project ID (required)")
	flags.String("dataset", "cashflow", "BigQuery dataset ID")
	flags.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	flags.String("migrations", "migrations/bigquery", "Path to migrations directory")

	_ = v.BindPFlag("storage.bigquery.project", flags.Lookup("project"))
	_ = v.BindPFlag("storage.bigquery.dataset", flags.Lookup("dataset"))
	_ = v.BindPFlag("migrate.applied_by", flags.Lookup("applied-by"))
	_ = v.BindPFlag("migrate.dir", flags.Lookup("migrations"))
	v.SetEnvPrefix("CASHFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations (default)",
		RunE:  runUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE:  runStatus,
	})
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// migrator applies migrations to one dataset.
type migrator struct {
	client    *bigquery.Client
	project   string
	dataset   string
	appliedBy string
	log       zerolog.Logger
}

func newMigrator(ctx context.Context) (*migrator, []Migration, error) {
	project := v.GetString("storage.bigquery.project")
	dataset := v.GetString("storage.bigquery.dataset")
	// Validate required flags
	if project == "" {
		return nil, nil, fmt.Errorf("--project is required. Please specify your GCP project ID")
	}

	log := logger.New()

	dir, err := findMigrationsDir(v.GetString("migrate.dir"))
	if err != nil {
		return nil, nil, err
	}
	migrations, err := loadMigrations(os.DirFS(dir), project, dataset)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	// Create BigQuery client
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	log.Info().Str("project", project).Str("dataset", dataset).Msg("Connected to BigQuery")

	m := &migrator{
		client:    client,
		project:   project,
		dataset:   dataset,
		appliedBy: v.GetString("migrate.applied_by"),
		log:       log,
	}
	return m, migrations, nil
}

func runUp(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	m, migrations, err := newMigrator(ctx)
	if err != nil {
		return err
	}
	defer m.client.Close()

	// Ensure schema_migrations table exists
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	m.log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	todo, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}

	for _, migration := range todo {
		log := m.log.With().Int("version", migration.Version).Str("name", migration.Name).Logger()
		log.Info().Msg("Applying migration")

		if err := m.exec(ctx, migration.SQL, nil); err != nil {
			return fmt.Errorf("failed to execute migration %04d_%s: %w", migration.Version, migration.Name, err)
		}
		if err := m.recordMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to record migration %04d_%s: %w", migration.Version, migration.Name, err)
		}
		log.Info().Msg("Migration applied")
	}

	if len(todo) == 0 {
		m.log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		m.log.Info().Int("count", len(todo)).Msg("Successfully applied migrations")
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	m, migrations, err := newMigrator(ctx)
	if err != nil {
		return err
	}
	defer m.client.Close()

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	out := cmd.OutOrStdout()
	for _, mig := range migrations {
		am, ok := byVersion[mig.Version]
		switch {
		case !ok:
			fmt.Fprintf(out, "  [PENDING] %04d_%s\n", mig.Version, mig.Name)
		case am.Checksum != "" && am.Checksum != mig.Checksum:
			fmt.Fprintf(out, "  [CHANGED] %04d_%s (applied %s)\n", mig.Version, mig.Name, am.AppliedAt.Format(time.RFC3339))
		default:
			fmt.Fprintf(out, "  [APPLIED] %04d_%s (%s by %s)\n", mig.Version, mig.Name, am.AppliedAt.Format(time.RFC3339), am.AppliedBy)
		}
	}
	return nil
}

// findMigrationsDir resolves dir relative to the working directory, falling
// back to the repository root when run from cmd/migrate.
func findMigrationsDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// parseMigrationFilename splits 0001_name.sql into its version and name.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// loadMigrations reads every migration file at the root of fsys, substitutes
// the project and dataset placeholders and sorts the result by version.
// Files that do not follow the naming pattern are ignored.
func loadMigrations(fsys fs.FS, project, dataset string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := map[int]string{}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", project)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)

		// The checksum covers the file as written, so the same migration
		// matches across projects and datasets.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	// Sort by version
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingMigrations returns the migrations not yet applied. An applied
// migration whose file has since changed is an error.
func pendingMigrations(migrations []Migration, applied []AppliedMigration) ([]Migration, error) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	var pending []Migration
	for _, m := range migrations {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %04d_%s was modified after it was applied", m.Version, m.Name)
		}
	}
	return pending, nil
}

func (m *migrator) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", m.project, m.dataset)
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return m.exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+m.table()+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, nil)
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := m.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table() + `
		ORDER BY version ASC
	`)
	it, err := query.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, migration Migration) error {
	return m.exec(ctx, `
		INSERT INTO `+m.table()+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

// exec runs one statement and waits for it to finish.
func (m *migrator) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := m.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
