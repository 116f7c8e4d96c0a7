package manifest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

// LoadCompose converts a docker compose file into a release manifest. Each
// service becomes a context; depends_on entries become context dependencies.
func LoadCompose(ctx context.Context, body []byte, projectName, stackVersion string) (*ReleaseManifest, error) {
	if len(body) == 0 {
		return nil, errors.New("compose body is empty")
	}
	if projectName == "" {
		projectName = "rsgo"
	}

	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "compose.yml",
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName(projectName, false)
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		return nil, fmt.Errorf("load compose: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, errors.New("compose has no services")
	}

	m := &ReleaseManifest{
		ManifestVersion: "1",
		StackVersion:    stackVersion,
		Networks:        map[string]Network{},
	}
	for name, network := range project.Networks {
		if name == "default" {
			continue
		}
		m.Networks[name] = Network{External: bool(network.External)}
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		service := project.Services[name]
		if service.Image == "" {
			return nil, fmt.Errorf("service %q missing image", name)
		}
		m.Contexts = append(m.Contexts, Context{
			Name:          name,
			Image:         service.Image,
			ContainerName: service.ContainerName,
			DependsOn:     dependencyNames(service.DependsOn),
			Env:           environment(service.Environment),
			Ports:         portSpecs(service.Ports),
			Volumes:       volumeSpecs(service.Volumes),
			Networks:      networkNames(service.Networks),
		})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func dependencyNames(deps types.DependsOnConfig) []string {
	if len(deps) == 0 {
		return nil
	}
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func environment(env types.MappingWithEquals) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for key, value := range env {
		if value == nil {
			out[key] = ""
			continue
		}
		out[key] = *value
	}
	return out
}

func portSpecs(ports []types.ServicePortConfig) []string {
	if len(ports) == 0 {
		return nil
	}
	specs := make([]string, 0, len(ports))
	for _, port := range ports {
		target := strconv.FormatUint(uint64(port.Target), 10)
		var spec strings.Builder
		if port.HostIP != "" {
			spec.WriteString(port.HostIP + ":")
		}
		if port.Published != "" {
			spec.WriteString(port.Published + ":")
		}
		spec.WriteString(target)
		if port.Protocol != "" && port.Protocol != "tcp" {
			spec.WriteString("/" + port.Protocol)
		}
		specs = append(specs, spec.String())
	}
	return specs
}

func volumeSpecs(volumes []types.ServiceVolumeConfig) []string {
	if len(volumes) == 0 {
		return nil
	}
	specs := make([]string, 0, len(volumes))
	for _, volume := range volumes {
		if volume.Source == "" {
			specs = append(specs, volume.Target)
			continue
		}
		spec := volume.Source + ":" + volume.Target
		if volume.ReadOnly {
			spec += ":ro"
		}
		specs = append(specs, spec)
	}
	return specs
}

func networkNames(networks map[string]*types.ServiceNetworkConfig) []string {
	if len(networks) == 0 {
		return nil
	}
	names := make([]string, 0, len(networks))
	for name := range networks {
		if name == "default" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}
	return names
}
