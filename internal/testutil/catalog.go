package testutil

import (
	"context"
	"fmt"
	"sync"

	"ct-go/internal/model"
	"ct-go/internal/tracker"
)

// StubCatalog is a scripted CatalogClient serving in-memory fixtures.
// Per-method errors can be injected to simulate outages mid-fetch, and
// call counts are recorded for single-flight assertions.
type StubCatalog struct {
	mu sync.Mutex

	Families   []model.CatalogFamily
	Characters map[string][]model.CatalogCharacter // keyed by family UUID
	Variants   map[string][]model.CatalogVariant   // keyed by character UUID
	Barcodes   map[string]model.VariantBundle

	FamiliesErr   error
	CharactersErr error
	VariantsErr   error
	BarcodeErr    error

	FamilyCalls  int
	BarcodeCalls int
}

var _ tracker.CatalogClient = (*StubCatalog)(nil)

// NewStubCatalog creates an empty StubCatalog. Populate the fixture fields
// directly before use.
func NewStubCatalog() *StubCatalog {
	return &StubCatalog{
		Characters: make(map[string][]model.CatalogCharacter),
		Variants:   make(map[string][]model.CatalogVariant),
		Barcodes:   make(map[string]model.VariantBundle),
	}
}

func (s *StubCatalog) ListFamilies(ctx context.Context) ([]model.CatalogFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FamilyCalls++
	if s.FamiliesErr != nil {
		return nil, s.FamiliesErr
	}
	return append([]model.CatalogFamily(nil), s.Families...), nil
}

func (s *StubCatalog) ListCharacters(ctx context.Context, familyUUID string) ([]model.CatalogCharacter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CharactersErr != nil {
		return nil, s.CharactersErr
	}
	return append([]model.CatalogCharacter(nil), s.Characters[familyUUID]...), nil
}

func (s *StubCatalog) ListVariants(ctx context.Context, characterUUID string) ([]model.CatalogVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VariantsErr != nil {
		return nil, s.VariantsErr
	}
	return append([]model.CatalogVariant(nil), s.Variants[characterUUID]...), nil
}

func (s *StubCatalog) LookupBarcode(ctx context.Context, code string) (*model.VariantBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BarcodeCalls++
	if s.BarcodeErr != nil {
		return nil, s.BarcodeErr
	}
	bundle, ok := s.Barcodes[code]
	if !ok {
		return nil, fmt.Errorf("barcode %s: %w", code, tracker.ErrNotFound)
	}
	return &bundle, nil
}
