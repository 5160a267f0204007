package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/clock"
	"github.com/thinktestai/thinktest/internal/config"
	"github.com/thinktestai/thinktest/internal/providerkey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cfg   config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	clock  clock.Clock
	encKey []byte
}

func New(p Params) (domain.Service, error) {
	log := p.Log.Named("providerkey.service")
	key, err := deriveKey(p.Cfg.ProviderKeySecret)
	if err != nil {
		return nil, err
	}
	if key == nil {
		log.Warn("PROVIDER_KEY_SECRET not set; private provider keys cannot be stored")
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Service{
		db:     p.DB,
		log:    log,
		repo:   p.Repo,
		genID:  p.GenID,
		clock:  clk,
		encKey: key,
	}, nil
}

func (s *Service) ListCatalog(ctx context.Context) []domain.CatalogVendor {
	return domain.Catalog()
}

func (s *Service) ListKeys(ctx context.Context, userID snowflake.ID) ([]domain.KeySummary, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListKeys(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.KeySummary, 0, len(items))
	for _, item := range items {
		resp = append(resp, summary(item))
	}
	return resp, nil
}

func (s *Service) SetKey(ctx context.Context, userID snowflake.ID, vendor string, apiKey string) (*domain.KeySummary, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	vendor, err := normalizeVendor(vendor)
	if err != nil {
		return nil, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if len(apiKey) < 8 {
		return nil, domain.ErrInvalidKey
	}

	secret, err := seal(s.encKey, []byte(apiKey), associatedData(userID, vendor))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := domain.ProviderKey{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Vendor:    vendor,
		Secret:    secret,
		Hint:      hint(apiKey),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertKey(ctx, s.db, &item); err != nil {
		return nil, err
	}

	s.log.Info("provider key stored",
		zap.String("user_id", userID.String()),
		zap.String("vendor", vendor),
	)
	resp := summary(item)
	return &resp, nil
}

func (s *Service) DeleteKey(ctx context.Context, userID snowflake.ID, vendor string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	vendor, err := normalizeVendor(vendor)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteKey(ctx, s.db, userID, vendor)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.log.Info("provider key deleted",
		zap.String("user_id", userID.String()),
		zap.String("vendor", vendor),
	)
	return nil
}

func (s *Service) HasKey(ctx context.Context, userID snowflake.ID, vendor string) (bool, error) {
	if userID == 0 {
		return false, domain.ErrInvalidUser
	}
	vendor, err := normalizeVendor(vendor)
	if err != nil {
		return false, err
	}
	item, err := s.repo.FindKey(ctx, s.db, userID, vendor)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func (s *Service) Key(ctx context.Context, userID snowflake.ID, vendor string) (string, bool, error) {
	if userID == 0 {
		return "", false, domain.ErrInvalidUser
	}
	vendor, err := normalizeVendor(vendor)
	if err != nil {
		return "", false, err
	}
	item, err := s.repo.FindKey(ctx, s.db, userID, vendor)
	if err != nil {
		return "", false, err
	}
	if item == nil {
		return "", false, nil
	}

	plain, err := open(s.encKey, item.Secret, associatedData(userID, vendor))
	if err != nil {
		s.log.Error("failed to decrypt provider key",
			zap.String("user_id", userID.String()),
			zap.String("vendor", vendor),
			zap.Error(err),
		)
		return "", false, err
	}
	return string(plain), true, nil
}

func normalizeVendor(vendor string) (string, error) {
	vendor = strings.ToLower(strings.TrimSpace(vendor))
	if !domain.SupportedVendor(vendor) {
		return "", domain.ErrInvalidVendor
	}
	return vendor, nil
}

func associatedData(userID snowflake.ID, vendor string) []byte {
	return []byte(userID.String() + ":" + vendor)
}

func hint(apiKey string) string {
	if len(apiKey) <= 4 {
		return ""
	}
	return "..." + apiKey[len(apiKey)-4:]
}

func summary(item domain.ProviderKey) domain.KeySummary {
	return domain.KeySummary{
		Vendor:     item.Vendor,
		Configured: true,
		Hint:       item.Hint,
		UpdatedAt:  item.UpdatedAt,
	}
}
