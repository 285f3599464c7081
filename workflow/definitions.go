package workflow

import (
	"fmt"

	"github.com/gmaffy/viral-ngs-dx/catalog"
)

// Applet names as built from the source tree.
const (
	HumanDepletion          = "viral-ngs-human-depletion"
	HumanDepletionMultiplex = "viral-ngs-human-depletion-multiplex"
	Filter                  = "viral-ngs-filter"
	Trinity                 = "viral-ngs-trinity"
	AssemblyScaffolding     = "viral-ngs-assembly-scaffolding"
	AssemblyRefinement      = "viral-ngs-assembly-refinement"
	AssemblyAnalysis        = "viral-ngs-assembly-analysis"
	DemuxWrapper            = "viral-ngs-demux-wrapper"
	Demux                   = "viral-ngs-demux"
	Classification          = "viral-ngs-classification"
	BWACountHits            = "viral-ngs-bwa-count-hits"
	CountHitsMultiplex      = "viral-ngs-count-hits-multiplex"

	Trimmer           = "viral-ngs-trimmer"
	FilterLastal      = "viral-ngs-filter-lastal"
	AssemblyFinisher  = "viral-ngs-assembly-finisher"
	CountHitsStage    = "count hits, fastqc"
	legacyTrinityType = "mem2_ssd1_x2"
)

const (
	refine1Novoalign = "-r Random -l 30 -g 40 -x 20 -t 502"
	refine2Novoalign = "-r Random -l 40 -g 40 -x 20 -t 100"
	analysisAligner  = "-r Random -l 40 -g 40 -x 20 -t 100 -k"
)

func resourcesDefault() AppletDefault {
	return AppletDefault{Applet: HumanDepletion, Field: "resources"}
}

// Assembly takes raw reads through optional human depletion, filtering,
// Trinity, scaffolding, two rounds of refinement and analysis. The
// abridged variant starts at refinement with a supplied assembly.
func Assembly(species string, res catalog.Species) Spec {
	spec := Spec{
		Name:        fmt.Sprintf("viral-ngs-assembly_%s", species),
		Title:       fmt.Sprintf("viral-ngs-assembly_%s", species),
		Description: fmt.Sprintf("viral-ngs-assembly, with resources populated for %s", species),
	}
	if res.Abridged {
		spec.Stages = abridgedAssemblyStages()
	} else {
		spec.Stages = fullAssemblyStages(res)
	}
	return spec
}

func fullAssemblyStages(res catalog.Species) []Stage {
	resources := InputOf("deplete", "resources")

	deplete := Stage{
		Name:       "deplete",
		Executable: AppletNamed(HumanDepletion),
		Folder:     "intermediates",
		Input: map[string]any{
			"bmtagger_dbs": AppletDefault{Applet: HumanDepletion, Field: "bmtagger_dbs"},
			"blast_dbs":    AppletDefault{Applet: HumanDepletion, Field: "blast_dbs"},
			"resources":    resourcesDefault(),
		},
	}

	filter := Stage{
		Name:       "filter",
		Executable: AppletNamed(Filter),
		Folder:     "intermediates",
		Input: map[string]any{
			"reads":     Output("deplete", "cleaned_reads"),
			"resources": resources,
		},
	}
	if res.FilterTargets != "" {
		filter.Input["targets"] = File(res.FilterTargets)
	}

	trinity := Stage{
		Name:       "trinity",
		Executable: AppletNamed(Trinity),
		Folder:     "intermediates",
		Input: map[string]any{
			"reads":     Output("filter", "filtered_reads"),
			"subsample": 100000,
			"resources": resources,
		},
	}
	if res.Contaminants != "" {
		trinity.Input["contaminants"] = File(res.Contaminants)
	}

	scaffold := Stage{
		Name:       "scaffold",
		Executable: AppletNamed(AssemblyScaffolding),
		Folder:     "intermediates",
		Input: map[string]any{
			"trinity_contigs": Output("trinity", "contigs"),
			"trinity_reads":   Output("trinity", "subsampled_reads"),
			"resources":       resources,
		},
	}
	if res.ScaffoldReference != "" {
		scaffold.Input["reference_genome"] = File(res.ScaffoldReference)
	}

	refine1 := Stage{
		Name:       "refine1",
		Executable: AppletNamed(AssemblyRefinement),
		Folder:     "intermediates",
		Input: map[string]any{
			"assembly":          Output("scaffold", "modified_scaffold"),
			"reads":             Output("deplete", "cleaned_reads"),
			"min_coverage":      2,
			"novoalign_options": refine1Novoalign,
			"novocraft_license": InputOf("scaffold", "novocraft_license"),
			"gatk_tarball":      InputOf("scaffold", "gatk_tarball"),
			"resources":         resources,
		},
	}

	// refine2 keeps everything refine1 is bound to and tightens the
	// alignment settings.
	refine2 := Stage{
		Name:       "refine2",
		Executable: AppletNamed(AssemblyRefinement),
		Folder:     "intermediates",
		Input:      copyInput(refine1.Input),
	}
	refine2.Input["assembly"] = Output("refine1", "refined_assembly")
	refine2.Input["min_coverage"] = 3
	refine2.Input["novoalign_options"] = refine2Novoalign
	refine2.Input["major_cutoff"] = InputOf("refine1", "major_cutoff")

	analysis := Stage{
		Name:       "analysis",
		Executable: AppletNamed(AssemblyAnalysis),
		Input: map[string]any{
			"assembly":          Output("refine2", "refined_assembly"),
			"reads":             InputOf("refine2", "reads"),
			"aligner_options":   analysisAligner,
			"resources":         resources,
			"novocraft_license": InputOf("scaffold", "novocraft_license"),
			"gatk_tarball":      InputOf("scaffold", "gatk_tarball"),
		},
	}

	return []Stage{deplete, filter, trinity, scaffold, refine1, refine2, analysis}
}

func abridgedAssemblyStages() []Stage {
	refine1 := Stage{
		Name:       "refine1",
		Executable: AppletNamed(AssemblyRefinement),
		Folder:     "refinement_1",
		Input: map[string]any{
			"min_coverage":      2,
			"novoalign_options": refine1Novoalign,
			"resources":         resourcesDefault(),
		},
	}
	refine2 := Stage{
		Name:       "refine2",
		Executable: AppletNamed(AssemblyRefinement),
		Folder:     "refinement_2",
		Input: map[string]any{
			"reads":             InputOf("refine1", "reads"),
			"assembly":          Output("refine1", "refined_assembly"),
			"min_coverage":      3,
			"novoalign_options": refine2Novoalign,
			"resources":         InputOf("refine1", "resources"),
			"gatk_tarball":      InputOf("refine1", "gatk_tarball"),
			"novocraft_license": InputOf("refine1", "novocraft_license"),
			"major_cutoff":      InputOf("refine1", "major_cutoff"),
		},
	}
	analysis := Stage{
		Name:       "analysis",
		Executable: AppletNamed(AssemblyAnalysis),
		Input: map[string]any{
			"assembly":          Output("refine2", "refined_assembly"),
			"reads":             InputOf("refine2", "reads"),
			"aligner_options":   analysisAligner,
			"resources":         InputOf("refine1", "resources"),
			"novocraft_license": InputOf("refine1", "novocraft_license"),
			"gatk_tarball":      InputOf("refine1", "gatk_tarball"),
		},
	}
	return []Stage{refine1, refine2, analysis}
}

func demuxStages(perSample bool) []Stage {
	demux := Stage{
		Name:       "demux",
		Executable: AppletNamed(DemuxWrapper),
		Input: map[string]any{
			"resources":    resourcesDefault(),
			"demux_applet": AppletRef(Demux),
		},
	}
	if perSample {
		demux.Input["per_sample_output"] = true
	}
	countHits := Stage{
		Name:       CountHitsStage,
		Executable: AppletNamed(CountHitsMultiplex),
		Input: map[string]any{
			"resources":         InputOf("demux", "resources"),
			"in_bams":           Output("demux", "bams"),
			"per_sample_output": true,
			"count_hits_applet": AppletRef(BWACountHits),
		},
	}
	return []Stage{demux, countHits}
}

// DemuxOnly demultiplexes a sequencing run upload to unmapped BAMs and
// runs read QC on them.
func DemuxOnly() Spec {
	return Spec{
		Name:        "viral-ngs-demux-only",
		Title:       "viral-ngs-demux-only",
		Description: "viral-ngs demultiplexing",
		Stages:      demuxStages(false),
	}
}

// DemuxPlus adds human depletion and metagenomic classification to the
// demultiplexing workflow.
func DemuxPlus() Spec {
	stages := demuxStages(true)
	stages = append(stages,
		Stage{
			Name:       "deplete",
			Executable: AppletNamed(HumanDepletionMultiplex),
			Input: map[string]any{
				"bams":              Output("demux", "bams"),
				"depletion_applet":  AppletRef(HumanDepletion),
				"resources":         resourcesDefault(),
				"per_sample_output": true,
			},
		},
		Stage{
			Name:       "metagenomics",
			Executable: AppletNamed(Classification),
			Input: map[string]any{
				"mappings":  Output("demux", "bams"),
				"resources": resourcesDefault(),
			},
		},
	)
	return Spec{
		Name:        "viral-ngs-demux-plus",
		Title:       "viral-ngs-demux-plus",
		Description: "viral-ngs demultiplexing, human depletion, and metagenomics analysis",
		Stages:      stages,
	}
}

// LegacyOptions are the objects the four stage assembly workflow binds.
type LegacyOptions struct {
	Resources          string
	TrimContaminants   string
	FilterTargets      string
	TrinityApplet      string
	FinishingReference string
}

// LegacyAssembly is the trim, filter, Trinity and finishing workflow that
// predates the species specific assembly workflows.
func LegacyAssembly(o LegacyOptions) Spec {
	return Spec{
		Name:        "viral-ngs-assembly",
		Title:       "viral-ngs-assembly",
		Description: "viral-ngs-assembly",
		Stages: []Stage{
			{
				Name:       "trim",
				Executable: AppletNamed(Trimmer),
				Input: map[string]any{
					"adapters_etc": File(o.TrimContaminants),
					"resources":    File(o.Resources),
				},
			},
			{
				Name:       "filter",
				Executable: AppletNamed(FilterLastal),
				Input: map[string]any{
					"reads":     Output("trim", "trimmed_reads"),
					"reads2":    Output("trim", "trimmed_reads2"),
					"targets":   File(o.FilterTargets),
					"resources": InputOf("trim", "resources"),
				},
			},
			{
				Name:         "trinity",
				Executable:   ExecutableID(o.TrinityApplet),
				InstanceType: legacyTrinityType,
				Input: map[string]any{
					"reads":            Output("filter", "filtered_reads"),
					"reads2":           Output("filter", "filtered_reads2"),
					"advanced_options": "--min_contig_length 300",
				},
			},
			{
				Name:       "finishing",
				Executable: AppletNamed(AssemblyFinisher),
				Input: map[string]any{
					"trinity_assembly": Output("trinity", "fasta"),
					"reads":            Output("filter", "filtered_reads"),
					"reads2":           Output("filter", "filtered_reads2"),
					"reference_genome": File(o.FinishingReference),
					"resources":        InputOf("trim", "resources"),
				},
			},
		},
	}
}
