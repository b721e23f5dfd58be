package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"inspirestack/pkg/domain"
)

const migrateLockID int64 = 51920417

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

type GormStoreOptions struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.MaxOpenConns = n
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB, sizes the pool and runs migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = defaultMaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = defaultConnMaxLifetime
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{},
		&CategoryModel{},
		&QuoteModel{},
		&ArticleModel{},
		&BookModel{},
		&VideoModel{},
		&PromptModel{},
		&TagModel{},
		&CommentModel{},
		&VoteModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, t := range domain.ContentTypes {
		table := t.Table()
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = '%[1]s'
					AND constraint_name = '%[1]s_category_id_fkey'
				) THEN
					ALTER TABLE %[1]s
					ADD CONSTRAINT %[1]s_category_id_fkey
					FOREIGN KEY (category_id) REFERENCES categories(id);
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = '%[1]s'
					AND constraint_name = '%[1]s_user_id_fkey'
				) THEN
					ALTER TABLE %[1]s
					ADD CONSTRAINT %[1]s_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`, table)).Error; err != nil {
			return fmt.Errorf("ensure %s foreign keys: %w", table, err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				%[2]s BIGINT NOT NULL REFERENCES %[3]s(id) ON DELETE CASCADE,
				tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (%[2]s, tag_id)
			)
		`, t.TagTable(), t.TagColumn(), table)).Error; err != nil {
			return fmt.Errorf("create %s: %w", t.TagTable(), err)
		}
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'votes'
				AND constraint_name = 'votes_vote_type_check'
			) THEN
				ALTER TABLE votes
				ADD CONSTRAINT votes_vote_type_check CHECK (vote_type IN ('up', 'down'));
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'votes'
				AND constraint_name = 'votes_post_type_check'
			) THEN
				ALTER TABLE votes
				ADD CONSTRAINT votes_post_type_check CHECK (post_type IN ('quote', 'article', 'book', 'video', 'aiprompt'));
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'comments'
				AND constraint_name = 'comments_post_type_check'
			) THEN
				ALTER TABLE comments
				ADD CONSTRAINT comments_post_type_check CHECK (post_type IN ('quote', 'article', 'book', 'video', 'aiprompt'));
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'comments'
				AND constraint_name = 'comments_user_id_fkey'
			) THEN
				ALTER TABLE comments
				ADD CONSTRAINT comments_user_id_fkey
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure engagement constraints: %w", err)
	}
	return seedCategories(tx, DefaultCategories)
}

func seedCategories(tx *gorm.DB, categories []domain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	models := make([]CategoryModel, 0, len(categories))
	for _, c := range categories {
		models = append(models, CategoryModel{Name: c.Name, Slug: c.Slug, Icon: c.Icon, Color: c.Color})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&models).Error; err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// isUniqueViolation reports a duplicate-key failure from the driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser registers a user.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	model := userToModel(u)
	model.ID = 0
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("%w: username or email already registered", domain.ErrConflict)
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// GetUserByID returns a live user by id.
func (s *GormStore) GetUserByID(ctx context.Context, id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = false", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a live user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.db.WithContext(ctx).Where("email = ? AND is_deleted = false", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUserTheme stores the display preference of a user.
func (s *GormStore) UpdateUserTheme(ctx context.Context, id int64, theme domain.Theme) (domain.User, bool, error) {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND is_deleted = false", id).
		Updates(map[string]any{
			"display_mode": string(theme),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.User{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, false, nil
	}
	return s.GetUserByID(ctx, id)
}

// ListCategories returns live categories ordered by id.
func (s *GormStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var models []CategoryModel
	if err := s.db.WithContext(ctx).Where("is_deleted = false").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(models))
	for _, m := range models {
		out = append(out, categoryFromModel(m))
	}
	return out, nil
}

// UpsertCategories inserts or updates categories keyed by slug.
func (s *GormStore) UpsertCategories(ctx context.Context, categories []domain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	models := make([]CategoryModel, 0, len(categories))
	for _, c := range categories {
		models = append(models, CategoryModel{Name: c.Name, Slug: c.Slug, Icon: c.Icon, Color: c.Color})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "icon", "color", "is_deleted", "updated_at"}),
	}).Create(&models).Error
}
