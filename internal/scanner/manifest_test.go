package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depByName(t *testing.T, deps []Dependency, name string) Dependency {
	t.Helper()
	for _, d := range deps {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("dependency %q not found", name)
	return Dependency{}
}

func TestParseNPMManifest(t *testing.T) {
	data := []byte(`{
		"name": "demo",
		"dependencies": {
			"express": "^4.18.2",
			"lodash": "4.17.21"
		},
		"devDependencies": {
			"jest": ">=29.0.0"
		}
	}`)

	deps, err := parseNPMManifest("package.json", data)
	require.NoError(t, err)
	require.Len(t, deps, 3)

	express := depByName(t, deps, "express")
	assert.Equal(t, "4.18.2", express.Version, "range operators are stripped")
	assert.Equal(t, "pkg:npm/express@4.18.2", express.PURL())
	assert.False(t, express.Dev)

	jest := depByName(t, deps, "jest")
	assert.Equal(t, "29.0.0", jest.Version)
	assert.True(t, jest.Dev)
}

func TestParsePipManifest(t *testing.T) {
	data := []byte(`# web framework
flask==2.3.2
requests>=2.28.0

django<4.2
not a requirement line
`)

	deps, err := parsePipManifest("requirements.txt", data)
	require.NoError(t, err)
	require.Len(t, deps, 3)

	assert.Equal(t, "2.3.2", depByName(t, deps, "flask").Version)
	assert.Equal(t, "2.28.0", depByName(t, deps, "requests").Version)
	assert.Equal(t, "pkg:pypi/django@4.2", depByName(t, deps, "django").PURL())
}

func TestParseMavenManifest(t *testing.T) {
	data := []byte(`<project>
  <dependencies>
    <dependency>
      <groupId>org.apache.logging.log4j</groupId>
      <artifactId>log4j-core</artifactId>
      <version>2.14.1</version>
    </dependency>
    <dependency>
      <groupId>com.example</groupId>
      <artifactId>internal-lib</artifactId>
      <version>${project.version}</version>
    </dependency>
  </dependencies>
</project>`)

	deps, err := parseMavenManifest("pom.xml", data)
	require.NoError(t, err)
	require.Len(t, deps, 1, "unresolvable property versions are skipped")

	log4j := deps[0]
	assert.Equal(t, "org.apache.logging.log4j/log4j-core", log4j.Name)
	assert.Equal(t, "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1", log4j.PURL())
}

func TestParseComposerManifest(t *testing.T) {
	data := []byte(`{
		"require": {
			"php": ">=8.1",
			"ext-json": "*",
			"monolog/monolog": "^2.9"
		},
		"require-dev": {
			"phpunit/phpunit": "^10.0"
		}
	}`)

	deps, err := parseComposerManifest("composer.json", data)
	require.NoError(t, err)
	require.Len(t, deps, 2, "php and extension requirements are not packages")

	monolog := depByName(t, deps, "monolog/monolog")
	assert.Equal(t, "2.9", monolog.Version)
	assert.False(t, monolog.Dev)
	assert.True(t, depByName(t, deps, "phpunit/phpunit").Dev)
}

func TestParseManifest_Malformed(t *testing.T) {
	_, err := parseNPMManifest("package.json", []byte("{broken"))
	assert.Error(t, err)

	_, err = parseComposerManifest("composer.json", []byte("[]"))
	assert.Error(t, err)
}

func TestExtractFixedVersion(t *testing.T) {
	assert.Equal(t, "2.15.0", extractFixedVersion("Remote code execution. Fixed in version 2.15.0."))
	assert.Equal(t, "1.2.3", extractFixedVersion("Users should upgrade to 1.2.3 immediately"))
	assert.Equal(t, "4.17.21", extractFixedVersion("Prototype pollution. Patched in 4.17.21"))
	assert.Equal(t, "", extractFixedVersion("No fix is available at this time"))
}
