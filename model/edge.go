package model

// Edge vocabulary. VitalType marks a reified edge object; EdgeSource and
// EdgeDest point at its endpoints. The three recognized edge classes and
// their shortcut predicates are the only ones the materializer knows
// about — anything else is left alone.
const (
	VitalType = "http://vital.ai/ontology/vital-core#vitaltype"
	EdgeSource = "http://vital.ai/ontology/vital-core#hasEdgeSource"
	EdgeDest   = "http://vital.ai/ontology/vital-core#hasEdgeDestination"

	EdgeClassEntityFrame = "http://vital.ai/ontology/haley-ai-kg#Edge_hasEntityKGFrame"
	EdgeClassFrameFrame  = "http://vital.ai/ontology/haley-ai-kg#Edge_hasKGFrame"
	EdgeClassFrameSlot   = "http://vital.ai/ontology/haley-ai-kg#Edge_hasKGSlot"

	ShortcutEntityFrame = "http://vital.ai/vitalgraph/direct#hasEntityFrame"
	ShortcutFrameFrame  = "http://vital.ai/vitalgraph/direct#hasFrame"
	ShortcutFrameSlot   = "http://vital.ai/vitalgraph/direct#hasSlot"
)

// EdgeClassToShortcut maps a recognized edge class IRI to the direct
// shortcut predicate the materializer emits for it.
var EdgeClassToShortcut = map[string]string{
	EdgeClassEntityFrame: ShortcutEntityFrame,
	EdgeClassFrameFrame:  ShortcutFrameFrame,
	EdgeClassFrameSlot:   ShortcutFrameSlot,
}

// MaterializedPredicates is the set of predicates that exist only in the
// index, never in the primary.
var MaterializedPredicates = map[string]bool{
	ShortcutEntityFrame: true,
	ShortcutFrameFrame:  true,
	ShortcutFrameSlot:   true,
}

// RelevantNodeTypes enumerates the KG class IRIs whose deletion (as the
// object of a vitaltype triple) should cascade a shortcut cleanup: a
// KGEntity, a KGFrame, or any KGSlot subclass.
var RelevantNodeTypes = buildRelevantNodeTypes()

func buildRelevantNodeTypes() map[string]bool {
	const kgNS = "http://vital.ai/ontology/haley-ai-kg#"
	names := []string{
		"KGEntity", "KGFrame",
		"KGAudioSlot", "KGBooleanSlot", "KGChoiceOptionSlot", "KGChoiceSlot",
		"KGCodeSlot", "KGCurrencySlot", "KGDateTimeSlot", "KGDoubleSlot",
		"KGEntitySlot", "KGFileUploadSlot", "KGGeoLocationSlot", "KGImageSlot",
		"KGIntegerSlot", "KGJSONSlot", "KGLongSlot", "KGLongTextSlot",
		"KGMultiChoiceOptionSlot", "KGMultiChoiceSlot", "KGMultiTaxonomyOptionSlot",
		"KGMultiTaxonomySlot", "KGPropertySlot", "KGRunSlot", "KGTaxonomyOptionSlot",
		"KGTaxonomySlot", "KGTextSlot", "KGURISlot", "KGVideoSlot",
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[kgNS+n] = true
	}
	return set
}

// EdgeInfo is one detected complete edge object.
type EdgeInfo struct {
	EdgeURI string
	Type    string // one of the EdgeClass* constants
	Source  string
	Dest    string
	Graph   string
}

// Complete reports whether an edge has both endpoints resolved.
func (e EdgeInfo) Complete() bool {
	return e.Source != "" && e.Dest != ""
}

// Shortcut returns the direct predicate this edge type materializes to.
func (e EdgeInfo) Shortcut() string {
	return EdgeClassToShortcut[e.Type]
}
