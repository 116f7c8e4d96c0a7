package manifest

import (
	"context"
	"strings"
	"testing"
)

func TestLoadCompose_Basic(t *testing.T) {
	composeYAML := `
services:
  web:
    image: nginx:1.23
    container_name: shop-web
    depends_on:
      - api
    ports:
      - "8080:80"
    networks:
      - front
  api:
    image: example/api:2.0
    environment:
      LOG_LEVEL: debug
    volumes:
      - api-data:/data:ro
networks:
  front:
    external: true
volumes:
  api-data: {}
`

	m, err := LoadCompose(context.Background(), []byte(composeYAML), "shop", "1.4.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.StackVersion != "1.4.0" {
		t.Fatalf("unexpected stack version: %q", m.StackVersion)
	}
	if len(m.Contexts) != 2 || m.Contexts[0].Name != "api" || m.Contexts[1].Name != "web" {
		t.Fatalf("unexpected contexts: %+v", m.Contexts)
	}

	web, _ := m.Context("web")
	if web.ContainerName != "shop-web" {
		t.Fatalf("unexpected container name: %q", web.ContainerName)
	}
	if len(web.DependsOn) != 1 || web.DependsOn[0] != "api" {
		t.Fatalf("unexpected dependencies: %v", web.DependsOn)
	}
	if len(web.Ports) != 1 || web.Ports[0] != "8080:80" {
		t.Fatalf("unexpected ports: %v", web.Ports)
	}
	if len(web.Networks) != 1 || web.Networks[0] != "front" {
		t.Fatalf("unexpected networks: %v", web.Networks)
	}
	if !m.Networks["front"].External {
		t.Fatalf("expected front network to be external")
	}

	api, _ := m.Context("api")
	if api.Env["LOG_LEVEL"] != "debug" {
		t.Fatalf("unexpected env: %v", api.Env)
	}
	if len(api.Volumes) != 1 || !strings.HasSuffix(api.Volumes[0], ":/data:ro") {
		t.Fatalf("unexpected volumes: %v", api.Volumes)
	}
}

func TestLoadCompose_Errors(t *testing.T) {
	if _, err := LoadCompose(context.Background(), nil, "shop", ""); err == nil {
		t.Fatalf("expected error for empty body")
	}
	_, err := LoadCompose(context.Background(), []byte("services:\n  web:\n    build: .\n"), "shop", "")
	if err == nil || !strings.Contains(err.Error(), "missing image") {
		t.Fatalf("expected missing image error, got %v", err)
	}
}
