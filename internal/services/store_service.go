package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"

	domain "github.com/vendorhub/marketplace/internal/domain"
	"github.com/vendorhub/marketplace/internal/platform/rollback"
	"github.com/vendorhub/marketplace/internal/platform/storage"
	"github.com/vendorhub/marketplace/internal/platform/textutil"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const (
	storeIDPrefix     = "sto_"
	storeTeamIDPrefix = "team_"
	logoUploadPrefix  = "logo_"

	maxStoreNameLength        = 120
	maxStoreDescriptionLength = 2000
)

var (
	// ErrStoreInvalidInput signals the caller provided invalid data.
	ErrStoreInvalidInput = errors.New("store: invalid input")
	// ErrStoreNotFound indicates the store could not be located.
	ErrStoreNotFound = errors.New("store: not found")
	// ErrStorePermissionDenied indicates the actor does not manage the store.
	ErrStorePermissionDenied = errors.New("store: permission denied")
	// ErrStoreConflict indicates a concurrent write or duplicate id.
	ErrStoreConflict = errors.New("store: conflict")
	// ErrStoreWriteFailed wraps a multi-step write failure after rollback.
	ErrStoreWriteFailed = errors.New("store: write failed")
)

// LogoStorage stores store logo objects.
type LogoStorage interface {
	Upload(ctx context.Context, object, contentType string, data []byte) error
	Delete(ctx context.Context, object string) error
}

// CacheInvalidator drops cached entries matching key patterns.
type CacheInvalidator interface {
	Invalidate(patterns ...string) int
}

// StoreServiceDeps bundles collaborators required to construct the store service.
type StoreServiceDeps struct {
	Stores      repositories.StoreRepository
	Teams       repositories.StoreTeamRepository
	Logos       LogoStorage
	Cache       CacheInvalidator
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type storeService struct {
	stores repositories.StoreRepository
	teams  repositories.StoreTeamRepository
	logos  LogoStorage
	cache  CacheInvalidator
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewStoreService wires dependencies into a concrete StoreService implementation.
func NewStoreService(deps StoreServiceDeps) (StoreService, error) {
	if deps.Stores == nil {
		return nil, errors.New("store service: store repository is required")
	}
	if deps.Teams == nil {
		return nil, errors.New("store service: team repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &storeService{
		stores: deps.Stores,
		teams:  deps.Teams,
		logos:  deps.Logos,
		cache:  deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Create uploads the logo, creates the team, then the store. A failure at any
// step removes whatever was already created.
func (s *storeService) Create(ctx context.Context, cmd CreateStoreCommand) (store Store, err error) {
	owner := strings.TrimSpace(cmd.Actor.ID)
	if owner == "" {
		return Store{}, fmt.Errorf("%w: owner is required", ErrStoreInvalidInput)
	}
	kind := domain.StoreKind(strings.ToLower(strings.TrimSpace(cmd.Kind)))
	if kind != domain.StoreKindVirtual && kind != domain.StoreKindPhysical {
		return Store{}, fmt.Errorf("%w: kind must be virtual or physical", ErrStoreInvalidInput)
	}
	name := textutil.SanitizeText(cmd.Name, maxStoreNameLength)
	if name == "" {
		return Store{}, fmt.Errorf("%w: name is required", ErrStoreInvalidInput)
	}
	email, err := normaliseEmail(cmd.ContactEmail)
	if err != nil {
		return Store{}, err
	}
	locale, err := normaliseLocale(cmd.Locale)
	if err != nil {
		return Store{}, err
	}
	if cmd.Logo != nil && s.logos == nil {
		return Store{}, fmt.Errorf("%w: logo uploads are not configured", ErrStoreInvalidInput)
	}

	now := s.clock()
	store = Store{
		ID:           storeIDPrefix + s.newID(),
		Kind:         kind,
		Name:         name,
		Description:  textutil.SanitizeText(cmd.Description, maxStoreDescriptionLength),
		OwnerUID:     owner,
		ContactEmail: email,
		Locale:       locale,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tracker := rollback.New(s.logger)
	defer func() {
		if err == nil {
			tracker.Discard()
			return
		}
		failed := tracker.Rollback(ctx)
		s.logger(ctx, "store.create.rollback", map[string]any{
			"storeId": store.ID,
			"failed":  failed,
			"error":   err.Error(),
		})
		err = fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
		store = Store{}
	}()

	if cmd.Logo != nil {
		object, err := s.uploadLogo(ctx, tracker, store.ID, *cmd.Logo)
		if err != nil {
			return store, err
		}
		store.LogoPath = object
	}

	team := StoreTeam{
		ID:        storeTeamIDPrefix + s.newID(),
		StoreID:   store.ID,
		Name:      teamName(name),
		Members:   teamMembers(owner, cmd.TeamMembers),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.teams.Insert(ctx, team); err != nil {
		return store, s.mapRepositoryError(err)
	}
	tracker.Track(rollback.KindTeam, team.ID, func(ctx context.Context) error {
		return s.teams.Delete(ctx, team.ID)
	})
	store.TeamID = team.ID

	if err := s.stores.Insert(ctx, store); err != nil {
		return store, s.mapRepositoryError(err)
	}
	tracker.Track(rollback.KindDocument, "stores/"+store.ID, func(ctx context.Context) error {
		return s.stores.Delete(ctx, store.ID)
	})

	s.logger(ctx, "store.created", map[string]any{
		"storeId": store.ID,
		"kind":    string(store.Kind),
		"owner":   owner,
	})
	return store, nil
}

// Update applies the patch. A replaced logo is deleted only once the store
// document points at the new one; a team rename is reverted if the store write fails.
func (s *storeService) Update(ctx context.Context, cmd UpdateStoreCommand) (store Store, err error) {
	storeID := strings.TrimSpace(cmd.StoreID)
	if storeID == "" {
		return Store{}, fmt.Errorf("%w: store id is required", ErrStoreInvalidInput)
	}
	current, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	if !cmd.Actor.Operator && current.OwnerUID != cmd.Actor.ID && !cmd.Actor.ownsStore(storeID) {
		return Store{}, ErrStorePermissionDenied
	}
	if cmd.Logo != nil && s.logos == nil {
		return Store{}, fmt.Errorf("%w: logo uploads are not configured", ErrStoreInvalidInput)
	}

	store = current
	if cmd.Name != nil {
		store.Name = textutil.SanitizeText(*cmd.Name, maxStoreNameLength)
		if store.Name == "" {
			return Store{}, fmt.Errorf("%w: name must not be empty", ErrStoreInvalidInput)
		}
	}
	if cmd.Description != nil {
		store.Description = textutil.SanitizeText(*cmd.Description, maxStoreDescriptionLength)
	}
	if cmd.ContactEmail != nil {
		email, err := normaliseEmail(*cmd.ContactEmail)
		if err != nil {
			return Store{}, err
		}
		store.ContactEmail = email
	}
	if cmd.Locale != nil {
		locale, err := normaliseLocale(*cmd.Locale)
		if err != nil {
			return Store{}, err
		}
		store.Locale = locale
	}

	tracker := rollback.New(s.logger)
	defer func() {
		if err == nil {
			tracker.Discard()
			return
		}
		failed := tracker.Rollback(ctx)
		s.logger(ctx, "store.update.rollback", map[string]any{
			"storeId": storeID,
			"failed":  failed,
			"error":   err.Error(),
		})
		err = fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
		store = Store{}
	}()

	if cmd.Logo != nil {
		object, err := s.uploadLogo(ctx, tracker, store.ID, *cmd.Logo)
		if err != nil {
			return store, err
		}
		store.LogoPath = object
	}

	if store.Name != current.Name && store.TeamID != "" {
		if err := s.renameTeam(ctx, tracker, store.TeamID, teamName(store.Name)); err != nil {
			return store, err
		}
	}

	store.UpdatedAt = s.clock()
	if err := s.stores.Update(ctx, store); err != nil {
		return store, s.mapRepositoryError(err)
	}

	if current.LogoPath != "" && current.LogoPath != store.LogoPath {
		if err := s.logos.Delete(ctx, current.LogoPath); err != nil {
			s.logger(ctx, "store.logo.cleanup.failed", map[string]any{
				"storeId": storeID,
				"object":  current.LogoPath,
				"error":   err.Error(),
			})
		}
	}
	s.invalidate(ctx, storeID)

	s.logger(ctx, "store.updated", map[string]any{
		"storeId": storeID,
		"actor":   cmd.Actor.ID,
	})
	return store, nil
}

func (s *storeService) Get(ctx context.Context, storeID string) (Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return Store{}, fmt.Errorf("%w: store id is required", ErrStoreInvalidInput)
	}
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return Store{}, s.mapRepositoryError(err)
	}
	return store, nil
}

func (s *storeService) uploadLogo(ctx context.Context, tracker *rollback.Tracker, storeID string, logo LogoUpload) (string, error) {
	object, err := storage.StoreLogoPath(storeID, logoUploadPrefix+strings.ToLower(s.newID()), logo.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreInvalidInput, err)
	}
	if err := s.logos.Upload(ctx, object, logo.ContentType, logo.Data); err != nil {
		if errors.Is(err, storage.ErrEmptyObject) || errors.Is(err, storage.ErrObjectTooLarge) || errors.Is(err, storage.ErrContentTypeDenied) {
			return "", fmt.Errorf("%w: %v", ErrStoreInvalidInput, err)
		}
		return "", err
	}
	tracker.Track(rollback.KindFile, object, func(ctx context.Context) error {
		return s.logos.Delete(ctx, object)
	})
	return object, nil
}

func (s *storeService) renameTeam(ctx context.Context, tracker *rollback.Tracker, teamID, name string) error {
	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	previous := team
	team.Name = name
	team.UpdatedAt = s.clock()
	if err := s.teams.Update(ctx, team); err != nil {
		return s.mapRepositoryError(err)
	}
	tracker.Track(rollback.KindTeam, teamID, func(ctx context.Context) error {
		return s.teams.Update(ctx, previous)
	})
	return nil
}

func (s *storeService) invalidate(ctx context.Context, storeID string) {
	if s.cache == nil {
		return
	}
	removed := s.cache.Invalidate(storeCacheKeyPrefix+storeID, storeCacheKeyPrefix+storeID+":*")
	s.logger(ctx, "store.cache.invalidated", map[string]any{
		"storeId": storeID,
		"removed": removed,
	})
}

func (s *storeService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrStoreNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrStoreConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("store: repository unavailable: %w", err)
		}
	}

	return err
}

func teamName(storeName string) string {
	return storeName + " team"
}

func teamMembers(owner string, extra []string) []string {
	members := []string{owner}
	for _, member := range extra {
		member = strings.TrimSpace(member)
		if member != "" && !slices.Contains(members, member) {
			members = append(members, member)
		}
	}
	return members
}

func normaliseEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", fmt.Errorf("%w: contact email %q is invalid", ErrStoreInvalidInput, value)
	}
	return strings.ToLower(addr.Address), nil
}

func normaliseLocale(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w: locale %q is invalid", ErrStoreInvalidInput, value)
	}
	return tag.String(), nil
}
