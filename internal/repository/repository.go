package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Compile-time checks to ensure Repository serves the engine
var (
	_ podds.FixtureSource  = (*Repository)(nil)
	_ podds.PredictionSink = (*Repository)(nil)
	_ podds.TeamSeasonSink = (*Repository)(nil)
	_ podds.LearningSource = (*Repository)(nil)
)

// Repository is the postgres implementation of the engine's storage interfaces
type Repository struct {
	db *gorm.DB
}

// New wraps an already opened connection
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to postgres, creating the database when it does not exist,
// and migrates the tables
func Open(ctx context.Context, dsn string) (*Repository, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil && isMissingDatabase(err) {
		logger.Warn("Database missing, creating it", err.Error())
		if ensureErr := ensureDatabase(ctx, dsn); ensureErr != nil {
			return nil, fmt.Errorf("failed to create database: %w", ensureErr)
		}
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.WithContext(ctx).AutoMigrate(&FixtureRow{}, &TeamSeasonRow{}, &PredictionRow{}, &LearningRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	logger.Info("Postgres repository initialized")
	return New(db), nil
}

// Close releases the connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isMissingDatabase(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "3D000")
}

// adminDSN points dsn at the postgres maintenance database and returns the
// name of the database it originally targeted
func adminDSN(dsn string) (string, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("invalid dsn: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", "", fmt.Errorf("dsn must be a postgres url, got scheme %q", u.Scheme)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", "", errors.New("dsn has no database name")
	}
	u.Path = "/postgres"
	return u.String(), name, nil
}

func ensureDatabase(ctx context.Context, dsn string) error {
	admin, name, err := adminDSN(dsn)
	if err != nil {
		return err
	}
	db, err := sql.Open("pgx", admin)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check database %s: %w", name, err)
	}
	if exists {
		return nil
	}
	// identifiers cannot be bound as parameters
	quoted := `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+quoted); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	logger.Info("Created database", name)
	return nil
}

// Fixtures returns the season's fixtures in (kickoff, id) order
func (r *Repository) Fixtures(ctx context.Context, leagueID int, season string) ([]podds.Fixture, error) {
	var rows []FixtureRow
	err := r.db.WithContext(ctx).
		Where("league_id = ? AND season = ?", leagueID, season).
		Order("kickoff, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures for %d %s: %w", leagueID, season, err)
	}
	out := make([]podds.Fixture, len(rows))
	for i, row := range rows {
		out[i] = row.fixture()
	}
	return out, nil
}

// SaveFixtures upserts fixtures, a later result overwrites the scheduled row
func (r *Repository) SaveFixtures(ctx context.Context, fixtures []podds.Fixture) error {
	if len(fixtures) == 0 {
		return nil
	}
	rows := make([]FixtureRow, len(fixtures))
	for i, f := range fixtures {
		rows[i] = fixtureRow(f)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
}

// SaveTeamSeasons upserts a season table in one transaction
func (r *Repository) SaveTeamSeasons(ctx context.Context, teams []*podds.TeamSeason) error {
	if len(teams) == 0 {
		return nil
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for _, t := range teams {
		row := teamSeasonRow(t)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save team %d: %w", t.TeamID, err)
		}
	}
	return tx.Commit().Error
}

// SavePrediction inserts a prediction, an existing id is an error
func (r *Repository) SavePrediction(ctx context.Context, p *podds.FixturePrediction) error {
	row, err := predictionRow(p)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Prediction loads a prediction by id
func (r *Repository) Prediction(ctx context.Context, id string) (*podds.FixturePrediction, error) {
	var row PredictionRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("prediction %s: %w", id, podds.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.prediction()
}

// LatestPrediction is the newest prediction made for a fixture
func (r *Repository) LatestPrediction(ctx context.Context, fixtureID int) (*podds.FixturePrediction, error) {
	var row PredictionRow
	err := r.db.WithContext(ctx).Where("fixture_id = ?", fixtureID).Order("created_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("prediction for fixture %d: %w", fixtureID, podds.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.prediction()
}

// Predictions returns every stored prediction keyed by id
func (r *Repository) Predictions(ctx context.Context) (map[string]*podds.FixturePrediction, error) {
	var rows []PredictionRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*podds.FixturePrediction, len(rows))
	for _, row := range rows {
		p, err := row.prediction()
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, nil
}

// SaveLearningRecord inserts a learning record
func (r *Repository) SaveLearningRecord(ctx context.Context, rec *podds.LearningRecord) error {
	row := learningRow(rec)
	return r.db.WithContext(ctx).Create(&row).Error
}

// LearningRecords returns every learning record oldest first
func (r *Repository) LearningRecords(ctx context.Context) ([]*podds.LearningRecord, error) {
	var rows []LearningRow
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*podds.LearningRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}
