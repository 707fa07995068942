package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/semmidev/dbwarden/internal/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Configs manages backup policies. It enforces one config per database
// before anything is written.
type Configs struct {
	store  domain.ConfigStore
	dumper domain.Dumper
	logger Logger
}

func NewConfigs(store domain.ConfigStore, dumper domain.Dumper, logger Logger) *Configs {
	return &Configs{
		store:  store,
		dumper: dumper,
		logger: logger,
	}
}

func (uc *Configs) Create(ctx context.Context, cfg *domain.BackupConfig) error {
	if err := uc.check(ctx, cfg); err != nil {
		return err
	}
	if err := uc.store.CreateConfig(ctx, cfg); err != nil {
		return err
	}
	uc.logger.Infof("[%s] Backup config created: %s, %d per day", cfg.Database, cfg.Format, cfg.TimesPerDay)
	return nil
}

func (uc *Configs) Update(ctx context.Context, cfg *domain.BackupConfig) error {
	if err := uc.check(ctx, cfg); err != nil {
		return err
	}
	return uc.store.UpdateConfig(ctx, cfg)
}

func (uc *Configs) Get(ctx context.Context, id uint) (*domain.BackupConfig, error) {
	return uc.store.GetConfig(ctx, id)
}

func (uc *Configs) GetByDatabase(ctx context.Context, database string) (*domain.BackupConfig, error) {
	return uc.store.GetConfigByDatabase(ctx, database)
}

func (uc *Configs) List(ctx context.Context) ([]*domain.BackupConfig, error) {
	return uc.store.ListConfigs(ctx)
}

// Seed creates the given policies, or updates the existing policy of the
// same database while keeping its counters.
func (uc *Configs) Seed(ctx context.Context, policies []*domain.BackupConfig) error {
	for _, policy := range policies {
		existing, err := uc.store.GetConfigByDatabase(ctx, policy.Database)
		switch {
		case err == nil:
			existing.Directory = policy.Directory
			existing.Format = policy.Format
			existing.Password = policy.Password
			existing.TimesPerDay = policy.TimesPerDay
			existing.AutoRemove = policy.AutoRemove
			if err := uc.Update(ctx, existing); err != nil {
				return fmt.Errorf("update config for %s: %w", policy.Database, err)
			}
			*policy = *existing
		case domain.IsKind(err, domain.ErrNotFound):
			if err := uc.Create(ctx, policy); err != nil {
				return fmt.Errorf("create config for %s: %w", policy.Database, err)
			}
		default:
			return fmt.Errorf("look up config for %s: %w", policy.Database, err)
		}
	}
	return nil
}

func (uc *Configs) check(ctx context.Context, cfg *domain.BackupConfig) error {
	if err := getValidator().Struct(cfg); err != nil {
		return domain.NewError(domain.ErrConfig, describeValidation(err), nil)
	}

	existing, err := uc.store.GetConfigByDatabase(ctx, cfg.Database)
	switch {
	case err == nil && existing.ID != cfg.ID:
		return domain.NewError(domain.ErrConfig, fmt.Sprintf("a backup config for database %q already exists", cfg.Database), nil)
	case err != nil && !domain.IsKind(err, domain.ErrNotFound):
		return err
	}

	if uc.dumper == nil {
		return nil
	}
	databases, err := uc.dumper.ListDatabases(ctx)
	if err != nil {
		uc.logger.Warnf("[%s] Could not list databases, skipping existence check: %v", cfg.Database, err)
		return nil
	}
	if !slices.Contains(databases, cfg.Database) {
		return domain.NewError(domain.ErrConfig, fmt.Sprintf("database %q does not exist on the server", cfg.Database), nil)
	}
	return nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "min", "max":
			messages = append(messages, fmt.Sprintf("%s must be between 1 and 12", fe.Field()))
		case "ne":
			messages = append(messages, fmt.Sprintf("%s must not be %q", fe.Field(), fe.Param()))
		case "excludesall":
			messages = append(messages, fmt.Sprintf("%s must not contain path separators", fe.Field()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
