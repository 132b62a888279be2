package service

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/types"
	"github.com/vibast-solutions/ms-go-identity/config"
)

type ProfileService interface {
	GetProfile(ctx context.Context, accountID string) (*types.ProfileResponse, error)
	UpdateProfile(ctx context.Context, accountID string, req *types.UpdateProfileRequest) (*types.ProfileResponse, error)
	Search(ctx context.Context, query string) ([]types.ProfileResponse, error)
}

type profileService struct {
	options
	accounts  accountRepository
	cfg       *config.Config
	validator *types.Validator
}

func NewProfileService(accounts accountRepository, cfg *config.Config, opts ...Option) ProfileService {
	return &profileService{
		options:   applyOptions(opts),
		accounts:  accounts,
		cfg:       cfg,
		validator: types.NewValidator(),
	}
}

func (s *profileService) GetProfile(ctx context.Context, accountID string) (*types.ProfileResponse, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	profile := toProfile(account)
	return &profile, nil
}

// UpdateProfile replaces the names of the account; an empty image keeps the
// current one.
func (s *profileService) UpdateProfile(ctx context.Context, accountID string, req *types.UpdateProfileRequest) (*types.ProfileResponse, error) {
	if err := s.validator.Validate(req).Err(); err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	account.FirstName = nullString(req.FirstName)
	account.LastName = nullString(req.LastName)
	if req.Image != "" {
		account.Avatar = req.Image
	}
	account.UpdatedAt = s.clock()

	if err = s.accounts.UpdateProfile(ctx, account); err != nil {
		return nil, err
	}

	profile := toProfile(account)
	return &profile, nil
}

func (s *profileService) Search(ctx context.Context, query string) ([]types.ProfileResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, (&types.ValidationError{}).Add("q", "q is required")
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	accounts, err := s.accounts.Search(ctx, query, s.cfg.Search.MaxResults)
	if err != nil {
		return nil, err
	}

	profiles := make([]types.ProfileResponse, 0, len(accounts))
	for _, account := range accounts {
		profiles = append(profiles, toProfile(account))
	}
	return profiles, nil
}

func toProfile(account *entity.Account) types.ProfileResponse {
	return types.ProfileResponse{
		ID:        account.ID,
		Email:     account.Email,
		Username:  account.Email,
		FirstName: account.FirstName.String,
		LastName:  account.LastName.String,
		Image:     account.Avatar,
	}
}
