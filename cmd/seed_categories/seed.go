package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"inspirestack/internal/servicetoken"
	"inspirestack/pkg/domain"
)

// refreshAudience is the audience the content service accepts on its
// internal routes.
const refreshAudience = "content"

type seedDoc struct {
	Categories []seedCategory `yaml:"categories"`
}

type seedCategory struct {
	Name  string `yaml:"name"`
	Slug  string `yaml:"slug"`
	Icon  string `yaml:"icon"`
	Color string `yaml:"color"`
}

type categoryWriter interface {
	UpsertCategories(ctx context.Context, categories []domain.Category) error
}

func loadSeed(path string) ([]domain.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc seedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return validateSeed(doc)
}

func validateSeed(doc seedDoc) ([]domain.Category, error) {
	if len(doc.Categories) == 0 {
		return nil, errors.New("seed file lists no categories")
	}
	seen := make(map[string]struct{}, len(doc.Categories))
	out := make([]domain.Category, 0, len(doc.Categories))
	for i, c := range doc.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("categories[%d]: name is required", i)
		}
		slug := strings.ToLower(strings.TrimSpace(c.Slug))
		if slug == "" {
			slug = strings.Join(strings.Fields(strings.ToLower(name)), "-")
		}
		if _, dup := seen[slug]; dup {
			return nil, fmt.Errorf("categories[%d]: duplicate slug %q", i, slug)
		}
		seen[slug] = struct{}{}
		out = append(out, domain.Category{
			Name:  name,
			Slug:  slug,
			Icon:  strings.TrimSpace(c.Icon),
			Color: strings.TrimSpace(c.Color),
		})
	}
	return out, nil
}

// notifyRefresh asks the content service to reload its categories.
func notifyRefresh(ctx context.Context, client *http.Client, baseURL string, signer *servicetoken.Signer) error {
	token, err := signer.Sign(refreshAudience)
	if err != nil {
		return fmt.Errorf("sign service token: %w", err)
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/internal/categories/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh categories: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("refresh categories: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type seedOptions struct {
	file       string
	contentURL string
	dryRun     bool
}

func run(ctx context.Context, opts seedOptions, writer categoryWriter, client *http.Client, signer *servicetoken.Signer, out io.Writer) error {
	categories, err := loadSeed(opts.file)
	if err != nil {
		return err
	}
	if opts.dryRun {
		for _, c := range categories {
			fmt.Fprintf(out, "%s\t%s\t%s\n", c.Slug, c.Name, c.Icon)
		}
		return nil
	}
	if err := writer.UpsertCategories(ctx, categories); err != nil {
		return fmt.Errorf("upsert categories: %w", err)
	}
	fmt.Fprintf(out, "upserted %d categories\n", len(categories))
	if opts.contentURL == "" {
		return nil
	}
	if signer == nil {
		return errors.New("a signing key is required to refresh the content service")
	}
	if err := notifyRefresh(ctx, client, opts.contentURL, signer); err != nil {
		return err
	}
	fmt.Fprintln(out, "content service refreshed")
	return nil
}
