package docker

import "testing"

func TestNormalizeImage(t *testing.T) {
	cases := map[string]string{
		"nginx:1.23@sha256:abc123":                  "nginx:1.23",
		"registry.example.com/app:v1@sha256:def456": "registry.example.com/app:v1",
		"nginx:1.23":       "nginx:1.23",
		"nginx@sha256:abc": "nginx",
	}
	for input, want := range cases {
		if got := NormalizeImage(input); got != want {
			t.Fatalf("NormalizeImage(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestContainerHealth(t *testing.T) {
	cases := map[string]string{
		"Up 5 minutes (healthy)":          "healthy",
		"Up 5 minutes (unhealthy)":        "unhealthy",
		"Up 2 seconds (health: starting)": "starting",
		"Up 5 minutes":                    "",
	}
	for status, want := range cases {
		if got := (Container{Status: status}).Health(); got != want {
			t.Fatalf("Health(%q) = %q, want %q", status, got, want)
		}
	}
}
