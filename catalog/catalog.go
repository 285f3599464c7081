// Package catalog holds the object ids and known-good values the build
// and test commands default to.
package catalog

import (
	_ "embed"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type Defaults struct {
	Project               string `yaml:"project"`
	GATK                  string `yaml:"gatk"`
	GATKBuilder           string `yaml:"gatk_builder"`
	NovocraftBuilder      string `yaml:"novocraft_builder"`
	Resources             string `yaml:"resources"`
	Muscle                string `yaml:"muscle"`
	MinikrakenDB          string `yaml:"minikraken_db"`
	ValidationProject     string `yaml:"validation_project"`
	ValidationDataProject string `yaml:"validation_data_project"`
}

// Species lists the reference objects an assembly workflow is populated
// with. Empty fields leave the corresponding stage input unset.
type Species struct {
	Contaminants      string `yaml:"contaminants"`
	FilterTargets     string `yaml:"filter_targets"`
	ScaffoldReference string `yaml:"scaffold_reference"`
	Abridged          bool   `yaml:"abridged"`
}

type LegacySample struct {
	Reads       string `yaml:"reads"`
	Reads2      string `yaml:"reads2"`
	ReadIDRegex string `yaml:"read_id_regex"`
}

type Legacy struct {
	TrimContaminants   string       `yaml:"trim_contaminants"`
	FilterTargets      string       `yaml:"filter_targets"`
	TrinityApplet      string       `yaml:"trinity_applet"`
	FinishingReference string       `yaml:"finishing_reference"`
	SRR1553416         LegacySample `yaml:"SRR1553416"`
}

type AssemblyTest struct {
	Species                     string `yaml:"species"`
	Reads                       string `yaml:"reads"`
	Reads2                      string `yaml:"reads2"`
	BroadAssembly               string `yaml:"broad_assembly"`
	ExpectedAssemblySHA256      string `yaml:"expected_assembly_sha256sum"`
	ExpectedSubsampledBaseCount int64  `yaml:"expected_subsampled_base_count"`
	ExpectedAlignmentBaseCount  int64  `yaml:"expected_alignment_base_count"`
}

type DemuxTest struct {
	UploadSentinelRecord string   `yaml:"upload_sentinel_record"`
	RunTarballs          []string `yaml:"run_tarballs"`
}

type Catalog struct {
	Defaults           Defaults                `yaml:"defaults"`
	Species            map[string]Species      `yaml:"species"`
	Legacy             Legacy                  `yaml:"legacy"`
	AssemblyTests      map[string]AssemblyTest `yaml:"assembly_tests"`
	LargeAssemblyTests map[string]AssemblyTest `yaml:"large_assembly_tests"`
	DemuxTests         map[string]DemuxTest    `yaml:"demux_tests"`
}

// Load parses the embedded catalog.
func Load() (Catalog, error) {
	return Parse(catalogYAML)
}

func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, errors.Wrap(err, "parsing catalog")
	}
	return c, nil
}

// SpeciesNames returns the species in a stable order.
func (c Catalog) SpeciesNames() []string {
	names := maps.Keys(c.Species)
	slices.Sort(names)
	return names
}

// Tests returns the small assembly tests, plus the large ones if asked.
func (c Catalog) Tests(large bool) map[string]AssemblyTest {
	tests := make(map[string]AssemblyTest, len(c.AssemblyTests)+len(c.LargeAssemblyTests))
	maps.Copy(tests, c.AssemblyTests)
	if large {
		maps.Copy(tests, c.LargeAssemblyTests)
	}
	return tests
}
