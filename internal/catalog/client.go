// Package catalog implements the HTTP client for the remote catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ct-go/internal/model"
	"ct-go/internal/tracker"
)

// Client talks to the remote catalog API. Every call carries the configured
// bounded timeout; nothing here retries — a failed call surfaces as a
// classified error and retrying is the caller's explicit decision.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Wire DTOs. The remote payload shapes are consumed here and nowhere else.

type familyDTO struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Series      string `json:"series"`
	FigureCount int    `json:"figure_count"`
}

type characterDTO struct {
	UUID         string `json:"uuid"`
	FamilyUUID   string `json:"family_uuid"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Species      string `json:"species"`
	VariantCount int    `json:"variant_count"`
}

type variantDTO struct {
	UUID          string `json:"uuid"`
	CharacterUUID string `json:"character_uuid"`
	Name          string `json:"name"`
	SetName       string `json:"set_name"`
	Epoch         string `json:"epoch"`
	SKU           string `json:"sku"`
	Barcode       string `json:"barcode"`
	ReleaseYear   int    `json:"release_year"`
	ImageURL      string `json:"image_url"`
	ThumbnailURL  string `json:"thumbnail_url"`
}

type bundleDTO struct {
	Family    familyDTO    `json:"family"`
	Character characterDTO `json:"character"`
	Variant   variantDTO   `json:"variant"`
}

// ListFamilies fetches the full family listing.
func (c *Client) ListFamilies(ctx context.Context) ([]model.CatalogFamily, error) {
	var dtos []familyDTO
	if err := c.getJSON(ctx, "/api/v1/families", &dtos); err != nil {
		return nil, err
	}

	out := make([]model.CatalogFamily, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, model.CatalogFamily{
			UUID:        d.UUID,
			Name:        d.Name,
			Series:      d.Series,
			FigureCount: d.FigureCount,
		})
	}
	return out, nil
}

// ListCharacters fetches the characters of one family, or all characters
// when familyUUID is empty.
func (c *Client) ListCharacters(ctx context.Context, familyUUID string) ([]model.CatalogCharacter, error) {
	path := "/api/v1/characters"
	if familyUUID != "" {
		path += "?family=" + url.QueryEscape(familyUUID)
	}

	var dtos []characterDTO
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, err
	}

	out := make([]model.CatalogCharacter, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, model.CatalogCharacter{
			UUID:         d.UUID,
			FamilyUUID:   d.FamilyUUID,
			Name:         d.Name,
			Role:         d.Role,
			Species:      d.Species,
			VariantCount: d.VariantCount,
		})
	}
	return out, nil
}

// ListVariants fetches the product variants of one character.
func (c *Client) ListVariants(ctx context.Context, characterUUID string) ([]model.CatalogVariant, error) {
	path := "/api/v1/characters/" + url.PathEscape(characterUUID) + "/variants"

	var dtos []variantDTO
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, err
	}

	out := make([]model.CatalogVariant, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, variantFromDTO(d))
	}
	return out, nil
}

// LookupBarcode resolves a scanned barcode to a self-contained bundle.
// Returns ErrNotFound when the catalog knows no such barcode.
func (c *Client) LookupBarcode(ctx context.Context, code string) (*model.VariantBundle, error) {
	var dto bundleDTO
	if err := c.getJSON(ctx, "/api/v1/barcodes/"+url.PathEscape(code), &dto); err != nil {
		return nil, err
	}

	return &model.VariantBundle{
		Family: model.CatalogFamily{
			UUID:        dto.Family.UUID,
			Name:        dto.Family.Name,
			Series:      dto.Family.Series,
			FigureCount: dto.Family.FigureCount,
		},
		Character: model.CatalogCharacter{
			UUID:         dto.Character.UUID,
			FamilyUUID:   dto.Character.FamilyUUID,
			Name:         dto.Character.Name,
			Role:         dto.Character.Role,
			Species:      dto.Character.Species,
			VariantCount: dto.Character.VariantCount,
		},
		Variant: variantFromDTO(dto.Variant),
	}, nil
}

func variantFromDTO(d variantDTO) model.CatalogVariant {
	return model.CatalogVariant{
		UUID:          d.UUID,
		CharacterUUID: d.CharacterUUID,
		Name:          d.Name,
		SetName:       d.SetName,
		Epoch:         d.Epoch,
		SKU:           d.SKU,
		Barcode:       d.Barcode,
		ReleaseYear:   d.ReleaseYear,
		ImageURL:      d.ImageURL,
		ThumbnailURL:  d.ThumbnailURL,
	}
}

// getJSON performs one GET and decodes the response, classifying failures:
// transport errors and 5xx become *tracker.TransientError, 404 becomes
// tracker.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	reqURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &tracker.TransientError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, tracker.ErrNotFound)
	case resp.StatusCode >= 500:
		return &tracker.TransientError{
			Op:  "GET " + path,
			Err: fmt.Errorf("catalog returned status %d", resp.StatusCode),
		}
	default:
		return fmt.Errorf("GET %s: catalog returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// Compile-time check that Client implements the core catalog interface.
var _ tracker.CatalogClient = (*Client)(nil)
