package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vendorhub/marketplace/internal/domain"
	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
	"github.com/vendorhub/marketplace/internal/repositories"
)

const (
	storesCollection     = "stores"
	storeTeamsCollection = "storeTeams"
)

type StoreRepository struct {
	base *pfirestore.BaseRepository[storeDocument]
}

var _ repositories.StoreRepository = (*StoreRepository)(nil)

func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	return &StoreRepository{
		base: pfirestore.NewBaseRepository[storeDocument](provider, storesCollection, nil, nil),
	}, nil
}

func (r *StoreRepository) Insert(ctx context.Context, store domain.Store) error {
	_, err := r.base.Create(ctx, store.ID, encodeStore(store))
	return err
}

func (r *StoreRepository) Update(ctx context.Context, store domain.Store) error {
	_, err := r.base.Set(ctx, store.ID, encodeStore(store))
	return err
}

func (r *StoreRepository) Delete(ctx context.Context, storeID string) error {
	return r.base.Delete(ctx, storeID)
}

func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(storeID))
	if err != nil {
		return domain.Store{}, err
	}
	return domain.Store{
		ID:           doc.ID,
		Kind:         domain.StoreKind(doc.Data.Kind),
		Name:         doc.Data.Name,
		Description:  doc.Data.Description,
		OwnerUID:     doc.Data.OwnerUID,
		ContactEmail: doc.Data.ContactEmail,
		Locale:       doc.Data.Locale,
		LogoPath:     doc.Data.LogoPath,
		TeamID:       doc.Data.TeamID,
		CreatedAt:    doc.Data.CreatedAt.UTC(),
		UpdatedAt:    doc.Data.UpdatedAt.UTC(),
	}, nil
}

type storeDocument struct {
	Kind         string    `firestore:"kind"`
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description,omitempty"`
	OwnerUID     string    `firestore:"ownerUid"`
	ContactEmail string    `firestore:"contactEmail,omitempty"`
	Locale       string    `firestore:"locale,omitempty"`
	LogoPath     string    `firestore:"logoPath,omitempty"`
	TeamID       string    `firestore:"teamId,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func encodeStore(store domain.Store) storeDocument {
	return storeDocument{
		Kind:         string(store.Kind),
		Name:         store.Name,
		Description:  store.Description,
		OwnerUID:     store.OwnerUID,
		ContactEmail: store.ContactEmail,
		Locale:       store.Locale,
		LogoPath:     store.LogoPath,
		TeamID:       store.TeamID,
		CreatedAt:    store.CreatedAt.UTC(),
		UpdatedAt:    store.UpdatedAt.UTC(),
	}
}

type StoreTeamRepository struct {
	base *pfirestore.BaseRepository[storeTeamDocument]
}

var _ repositories.StoreTeamRepository = (*StoreTeamRepository)(nil)

func NewStoreTeamRepository(provider *pfirestore.Provider) (*StoreTeamRepository, error) {
	if provider == nil {
		return nil, errors.New("store team repository requires firestore provider")
	}
	return &StoreTeamRepository{
		base: pfirestore.NewBaseRepository[storeTeamDocument](provider, storeTeamsCollection, nil, nil),
	}, nil
}

func (r *StoreTeamRepository) Insert(ctx context.Context, team domain.StoreTeam) error {
	_, err := r.base.Create(ctx, team.ID, encodeStoreTeam(team))
	return err
}

func (r *StoreTeamRepository) Update(ctx context.Context, team domain.StoreTeam) error {
	_, err := r.base.Update(ctx, team.ID, []firestore.Update{
		{Path: "name", Value: team.Name},
		{Path: "members", Value: team.Members},
		{Path: "updatedAt", Value: team.UpdatedAt.UTC()},
	})
	return err
}

func (r *StoreTeamRepository) Delete(ctx context.Context, teamID string) error {
	return r.base.Delete(ctx, teamID)
}

func (r *StoreTeamRepository) FindByID(ctx context.Context, teamID string) (domain.StoreTeam, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(teamID))
	if err != nil {
		return domain.StoreTeam{}, err
	}
	return domain.StoreTeam{
		ID:        doc.ID,
		StoreID:   doc.Data.StoreID,
		Name:      doc.Data.Name,
		Members:   append([]string(nil), doc.Data.Members...),
		CreatedAt: doc.Data.CreatedAt.UTC(),
		UpdatedAt: doc.Data.UpdatedAt.UTC(),
	}, nil
}

type storeTeamDocument struct {
	StoreID   string    `firestore:"storeId"`
	Name      string    `firestore:"name"`
	Members   []string  `firestore:"members"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeStoreTeam(team domain.StoreTeam) storeTeamDocument {
	return storeTeamDocument{
		StoreID:   team.StoreID,
		Name:      team.Name,
		Members:   append([]string(nil), team.Members...),
		CreatedAt: team.CreatedAt.UTC(),
		UpdatedAt: team.UpdatedAt.UTC(),
	}
}
