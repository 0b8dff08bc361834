package scanner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Dependency is one declared package from a project manifest.
type Dependency struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Manifest  string `json:"manifest"`
	Dev       bool   `json:"dev,omitempty"`
}

// PURL returns the package URL used as the lookup key against
// vulnerability intelligence sources.
func (d Dependency) PURL() string {
	return fmt.Sprintf("pkg:%s/%s@%s", d.Ecosystem, d.Name, d.Version)
}

// manifestParsers maps a manifest file name to its parser.
var manifestParsers = map[string]func(manifestPath string, data []byte) ([]Dependency, error){
	"package.json":     parseNPMManifest,
	"requirements.txt": parsePipManifest,
	"pom.xml":          parseMavenManifest,
	"composer.json":    parseComposerManifest,
}

var (
	pipRequirement = regexp.MustCompile(`^([a-zA-Z0-9\-_]+)(==|>=|<=|>|<)([0-9.]+)`)

	mavenDependency = regexp.MustCompile(`(?s)<dependency>.*?<groupId>(.*?)</groupId>.*?<artifactId>(.*?)</artifactId>.*?<version>(.*?)</version>.*?</dependency>`)
)

// trimConstraint strips range operators so "^1.2.3" and ">=1.2.3" resolve
// to the declared base version.
func trimConstraint(version string) string {
	return strings.TrimLeft(strings.TrimSpace(version), "^~><= ")
}

func parseNPMManifest(manifestPath string, data []byte) ([]Dependency, error) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	var deps []Dependency
	for name, version := range pkg.Dependencies {
		deps = append(deps, Dependency{
			Ecosystem: "npm",
			Name:      name,
			Version:   trimConstraint(version),
			Manifest:  manifestPath,
		})
	}
	for name, version := range pkg.DevDependencies {
		deps = append(deps, Dependency{
			Ecosystem: "npm",
			Name:      name,
			Version:   trimConstraint(version),
			Manifest:  manifestPath,
			Dev:       true,
		})
	}
	return deps, nil
}

func parsePipManifest(manifestPath string, data []byte) ([]Dependency, error) {
	var deps []Dependency
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := pipRequirement.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		deps = append(deps, Dependency{
			Ecosystem: "pypi",
			Name:      m[1],
			Version:   m[3],
			Manifest:  manifestPath,
		})
	}
	return deps, nil
}

func parseMavenManifest(manifestPath string, data []byte) ([]Dependency, error) {
	var deps []Dependency
	for _, m := range mavenDependency.FindAllStringSubmatch(string(data), -1) {
		groupID := strings.TrimSpace(m[1])
		artifactID := strings.TrimSpace(m[2])
		version := strings.TrimSpace(m[3])
		// Property placeholders like ${project.version} cannot be
		// resolved without evaluating the full POM.
		if strings.Contains(version, "${") {
			continue
		}
		deps = append(deps, Dependency{
			Ecosystem: "maven",
			Name:      groupID + "/" + artifactID,
			Version:   version,
			Manifest:  manifestPath,
		})
	}
	return deps, nil
}

func parseComposerManifest(manifestPath string, data []byte) ([]Dependency, error) {
	var pkg struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	skip := func(name string) bool {
		return name == "php" || strings.HasPrefix(name, "ext-")
	}

	var deps []Dependency
	for name, version := range pkg.Require {
		if skip(name) {
			continue
		}
		deps = append(deps, Dependency{
			Ecosystem: "composer",
			Name:      name,
			Version:   trimConstraint(version),
			Manifest:  manifestPath,
		})
	}
	for name, version := range pkg.RequireDev {
		if skip(name) {
			continue
		}
		deps = append(deps, Dependency{
			Ecosystem: "composer",
			Name:      name,
			Version:   trimConstraint(version),
			Manifest:  manifestPath,
			Dev:       true,
		})
	}
	return deps, nil
}
