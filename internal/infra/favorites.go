package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/stridegate/stridegate/internal/domain"
)

// MaxFavorites caps the saved-locations list.
const MaxFavorites = 10

// FavoritesStore keeps an ordered, capped list of saved locations in a slot.
// Used by the settings surface only; the engine never reads it.
type FavoritesStore struct {
	store domain.SlotStore
}

// NewFavoritesStore wraps a slot store.
func NewFavoritesStore(store domain.SlotStore) *FavoritesStore {
	return &FavoritesStore{store: store}
}

// List returns saved locations in insertion order.
func (f *FavoritesStore) List() ([]domain.Favorite, error) {
	var favs []domain.Favorite
	if err := f.store.Read(domain.SlotFavorites, &favs); err != nil {
		if errors.Is(err, domain.ErrSlotNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return favs, nil
}

// Add appends a favorite, evicting the oldest entry beyond the cap.
// A missing AddedAt is filled in.
func (f *FavoritesStore) Add(fav domain.Favorite) error {
	if fav.ID == "" {
		return fmt.Errorf("favorite id is required")
	}
	if fav.AddedAt.IsZero() {
		fav.AddedAt = time.Now()
	}

	favs, err := f.List()
	if err != nil {
		return err
	}

	// Replace an existing entry with the same id in place.
	replaced := false
	for i := range favs {
		if favs[i].ID == fav.ID {
			favs[i] = fav
			replaced = true
			break
		}
	}
	if !replaced {
		favs = append(favs, fav)
	}
	if len(favs) > MaxFavorites {
		favs = favs[len(favs)-MaxFavorites:]
	}

	return f.store.Write(domain.SlotFavorites, favs)
}

// Remove deletes a favorite by id. Removing a missing id is not an error.
func (f *FavoritesStore) Remove(id string) error {
	favs, err := f.List()
	if err != nil {
		return err
	}
	out := favs[:0]
	for _, fav := range favs {
		if fav.ID != id {
			out = append(out, fav)
		}
	}
	return f.store.Write(domain.SlotFavorites, out)
}
