package character

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gridmud-server/internal/domain/game"
	"gridmud-server/internal/store"
)

type fakeStore struct {
	chars map[uuid.UUID]game.Character
}

func newFakeStore() *fakeStore {
	return &fakeStore{chars: make(map[uuid.UUID]game.Character)}
}

func (f *fakeStore) CreateCharacter(_ context.Context, userID uuid.UUID, name, class, race, gender, location string) (game.Character, error) {
	c := game.Character{
		ID:          uuid.New(),
		CharacterID: uuid.New(),
		UserID:      userID,
		Name:        name,
		Class:       class,
		Race:        race,
		Gender:      gender,
		Location:    location,
	}
	f.chars[c.ID] = c
	return c, nil
}

func (f *fakeStore) ListCharactersByUser(_ context.Context, userID uuid.UUID) ([]game.Character, error) {
	out := make([]game.Character, 0)
	for _, c := range f.chars {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CharacterByID(_ context.Context, id uuid.UUID) (game.Character, error) {
	c, ok := f.chars[id]
	if !ok {
		return game.Character{}, store.ErrNotFound
	}
	return c, nil
}

func TestCreateDefaultsAndStart(t *testing.T) {
	svc := NewService(zerolog.Nop(), newFakeStore(), nil, 0, "X0Y0")
	c, err := svc.Create(context.Background(), uuid.New(), "  Aria  ", "", "", "")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if c.Name != "Aria" {
		t.Fatalf("name not trimmed: %q", c.Name)
	}
	if c.Class != "adventurer" || c.Race != "human" || c.Gender != "unspecified" {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if c.Location != "X0Y0" {
		t.Fatalf("character not placed at start: %q", c.Location)
	}
	if c.ID == c.CharacterID {
		t.Fatal("storage key and game identity must be distinct")
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc := NewService(zerolog.Nop(), newFakeStore(), nil, 0, "X0Y0")
	if _, err := svc.Create(context.Background(), uuid.New(), "   ", "mage", "", ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestGetByIDForUserOwnership(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(zerolog.Nop(), fs, nil, 0, "X0Y0")
	owner := uuid.New()
	c, err := svc.Create(context.Background(), owner, "Aria", "", "", "")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	got, err := svc.GetByIDForUser(context.Background(), owner, c.ID)
	if err != nil || got.ID != c.ID {
		t.Fatalf("owner lookup failed: %v", err)
	}

	if _, err := svc.GetByIDForUser(context.Background(), uuid.New(), c.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.GetByIDForUser(context.Background(), owner, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByUserScopesToOwner(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(zerolog.Nop(), fs, nil, 0, "X0Y0")
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()
	if _, err := svc.Create(ctx, owner, "Aria", "", "", ""); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if _, err := svc.Create(ctx, other, "Borin", "", "", ""); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	chars, err := svc.ListByUser(ctx, owner)
	if err != nil {
		t.Fatalf("ListByUser err: %v", err)
	}
	if len(chars) != 1 || chars[0].Name != "Aria" {
		t.Fatalf("roster not scoped: %+v", chars)
	}
}
