package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/spf13/cobra"
)

const maxManifestBytes = 1 << 20

// manifestSource describes where a stack manifest comes from.
type manifestSource struct {
	location     string
	compose      bool
	projectName  string
	stackVersion string
}

func addManifestFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "Manifest path or http(s) URL")
	cmd.Flags().Bool("compose", false, "Treat the file as a docker compose file")
	cmd.Flags().String("stack-version", "", "Stack version for compose files")
	cmd.Flags().StringArray("var", nil, "Deployment variable KEY=VALUE (repeatable)")
}

func manifestSourceFromFlags(cmd *cobra.Command, projectName string) manifestSource {
	location, _ := cmd.Flags().GetString("file")
	compose, _ := cmd.Flags().GetBool("compose")
	version, _ := cmd.Flags().GetString("stack-version")
	return manifestSource{
		location:     location,
		compose:      compose,
		projectName:  projectName,
		stackVersion: version,
	}
}

// load reads and parses the manifest.
func (s manifestSource) load(ctx context.Context, timeout time.Duration) (*manifest.ReleaseManifest, error) {
	if s.location == "" {
		return nil, domain.InvalidArgument("a manifest file or URL is required")
	}
	body, err := readManifest(ctx, s.location, timeout)
	if err != nil {
		return nil, err
	}
	if s.compose {
		return manifest.LoadCompose(ctx, body, s.projectName, s.stackVersion)
	}
	return manifest.Parse(body)
}

func readManifest(ctx context.Context, location string, timeout time.Duration) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		body, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		return body, nil
	}

	fetcher, err := manifest.NewHTTPFetcher(location, timeout, maxManifestBytes)
	if err != nil {
		return nil, err
	}
	result, err := fetcher.Fetch(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return result.Body, nil
}

// parseVariables turns KEY=VALUE pairs into a map.
func parseVariables(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, domain.InvalidArgument("variable %q must be KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

func variablesFromFlags(cmd *cobra.Command) (map[string]string, error) {
	pairs, _ := cmd.Flags().GetStringArray("var")
	return parseVariables(pairs)
}
