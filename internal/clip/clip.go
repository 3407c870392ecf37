// Package clip imports recipes from arbitrary web pages. Pages that publish
// schema.org Recipe JSON-LD are parsed structurally; everything else falls
// back to DOM heuristics.
package clip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"grovli-client/internal/api"
)

// Recipe is an imported recipe ready to save.
type Recipe struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
	PrepTime    string   `json:"prepTime,omitempty"`
	Servings    string   `json:"servings,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	SourceURL   string   `json:"sourceUrl"`
}

// Clipper fetches and extracts recipes from URLs.
type Clipper struct {
	backend    *api.Client
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClipper creates a clipper that saves through the backend client.
func NewClipper(backend *api.Client, logger *slog.Logger) *Clipper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clipper{
		backend:    backend,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Clip fetches the URL and extracts a recipe from it.
func (c *Clipper) Clip(ctx context.Context, url string) (*Recipe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	recipe, err := c.Extract(doc)
	if err != nil {
		return nil, err
	}
	recipe.SourceURL = url
	return recipe, nil
}

// Extract pulls a recipe out of a parsed document.
func (c *Clipper) Extract(doc *goquery.Document) (*Recipe, error) {
	if recipe := extractJSONLD(doc); recipe != nil {
		return recipe, nil
	}

	c.logger.Debug("no recipe JSON-LD found, falling back to DOM heuristics")
	recipe := extractHeuristic(doc)
	if recipe.Title == "" || len(recipe.Ingredients) == 0 {
		return nil, fmt.Errorf("no recipe found on page")
	}
	return recipe, nil
}

// Save persists an imported recipe to the user's saved recipes.
func (c *Clipper) Save(ctx context.Context, recipe *Recipe) error {
	if _, err := c.backend.Post(ctx, "/api/saved-recipes", recipe); err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}
	return nil
}

// jsonLDRecipe mirrors the slice of schema.org Recipe the importer uses.
// recipeInstructions varies wildly in the wild, so it decodes lazily.
type jsonLDRecipe struct {
	Type               any               `json:"@type"`
	Name               string            `json:"name"`
	Image              any               `json:"image"`
	RecipeIngredient   []string          `json:"recipeIngredient"`
	RecipeInstructions []json.RawMessage `json:"recipeInstructions"`
	PrepTime           string            `json:"prepTime"`
	RecipeYield        any               `json:"recipeYield"`
	Graph              []json.RawMessage `json:"@graph"`
}

func extractJSONLD(doc *goquery.Document) *Recipe {
	var found *Recipe
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		candidates := jsonLDCandidates([]byte(s.Text()))
		for _, data := range candidates {
			var ld jsonLDRecipe
			if err := json.Unmarshal(data, &ld); err != nil {
				continue
			}
			if !isRecipeType(ld.Type) {
				continue
			}
			found = fromJSONLD(ld)
			return false
		}
		return true
	})
	return found
}

// jsonLDCandidates flattens the shapes JSON-LD blocks come in: a single
// object, a top-level array, or an @graph container.
func jsonLDCandidates(data []byte) []json.RawMessage {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil
		}
		return list
	}

	var ld jsonLDRecipe
	if err := json.Unmarshal([]byte(trimmed), &ld); err != nil {
		return nil
	}
	if len(ld.Graph) > 0 {
		return ld.Graph
	}
	return []json.RawMessage{json.RawMessage(trimmed)}
}

func isRecipeType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

func fromJSONLD(ld jsonLDRecipe) *Recipe {
	recipe := &Recipe{
		Title:       ld.Name,
		Ingredients: ld.RecipeIngredient,
		PrepTime:    ld.PrepTime,
		Servings:    yieldString(ld.RecipeYield),
		ImageURL:    imageString(ld.Image),
	}

	for _, raw := range ld.RecipeInstructions {
		// Either a plain string or a HowToStep object.
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			recipe.Steps = append(recipe.Steps, text)
			continue
		}
		var step struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &step); err == nil && step.Text != "" {
			recipe.Steps = append(recipe.Steps, step.Text)
		}
	}
	return recipe
}

func yieldString(v any) string {
	switch y := v.(type) {
	case string:
		return y
	case float64:
		return fmt.Sprintf("%g", y)
	case []any:
		if len(y) > 0 {
			if s, ok := y[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func imageString(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		if len(img) > 0 {
			if s, ok := img[0].(string); ok {
				return s
			}
		}
	case map[string]any:
		if s, ok := img["url"].(string); ok {
			return s
		}
	}
	return ""
}

// extractHeuristic scrapes pages without structured data: the first h1 as
// the title, and the lists nearest the "ingredient"/"instruction" headings.
func extractHeuristic(doc *goquery.Document) *Recipe {
	// Remove noise first.
	doc.Find("script, style, nav, footer, iframe, .ads, #ads").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	recipe := &Recipe{
		Title: strings.TrimSpace(doc.Find("h1").First().Text()),
	}

	doc.Find("h2, h3").Each(func(i int, heading *goquery.Selection) {
		title := strings.ToLower(heading.Text())
		list := heading.NextAllFiltered("ul, ol").First()
		if list.Length() == 0 {
			return
		}

		var items []string
		list.Find("li").Each(func(i int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				items = append(items, text)
			}
		})

		switch {
		case strings.Contains(title, "ingredient") && len(recipe.Ingredients) == 0:
			recipe.Ingredients = items
		case (strings.Contains(title, "instruction") || strings.Contains(title, "direction") ||
			strings.Contains(title, "method") || strings.Contains(title, "step")) && len(recipe.Steps) == 0:
			recipe.Steps = items
		}
	})

	return recipe
}
