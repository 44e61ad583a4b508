package taxonomy

// minimalEntries is the last-resort vocabulary used when no other tier yields
// a usable snapshot. It keeps extraction meaningful on a machine with no
// network, no cache and no reference files.
var minimalEntries = []Entry{
	{PreferredLabel: "Python (Computerprogrammierung)", AltLabels: []string{"Python"}, IsDigital: true},
	{PreferredLabel: "Java (Computerprogrammierung)", AltLabels: []string{"Java"}, IsDigital: true},
	{PreferredLabel: "JavaScript", AltLabels: []string{"JS", "ECMAScript"}, IsDigital: true},
	{PreferredLabel: "TypeScript", IsDigital: true},
	{PreferredLabel: "C++", IsDigital: true},
	{PreferredLabel: "C#", IsDigital: true},
	{PreferredLabel: "Go (Programmiersprache)", AltLabels: []string{"Golang"}, IsDigital: true},
	{PreferredLabel: "R (Statistiksoftware)", IsDigital: true},
	{PreferredLabel: "SQL", AltLabels: []string{"Structured Query Language"}, IsDigital: true},
	{PreferredLabel: "Datenbanken verwalten", AltLabels: []string{"Datenbankadministration", "database management"}, IsDigital: true},
	{PreferredLabel: "Linux", IsDigital: true},
	{PreferredLabel: "Git", AltLabels: []string{"Versionskontrolle"}, IsDigital: true},
	{PreferredLabel: "Docker", AltLabels: []string{"Container"}, IsDigital: true},
	{PreferredLabel: "Kubernetes", AltLabels: []string{"K8s"}, IsDigital: true},
	{PreferredLabel: "Cloud Computing", AltLabels: []string{"AWS", "Azure", "Google Cloud"}, IsDigital: true},
	{PreferredLabel: "maschinelles Lernen", AltLabels: []string{"Machine Learning", "ML"}, IsDigital: true},
	{PreferredLabel: "Datenanalyse", AltLabels: []string{"Data Analysis", "Datenanalytik"}, IsDigital: true},
	{PreferredLabel: "Microsoft Office", AltLabels: []string{"MS Office", "Excel", "Word", "PowerPoint"}, IsDigital: true},
	{PreferredLabel: "Agile Methodiken anwenden", AltLabels: []string{"Scrum", "Kanban", "agile Entwicklung"}},
	{PreferredLabel: "Projektmanagement", AltLabels: []string{"Project Management"}},
	{PreferredLabel: "Teamarbeit", AltLabels: []string{"Teamfähigkeit", "teamwork"}},
	{PreferredLabel: "Kommunikation", AltLabels: []string{"Kommunikationsfähigkeit", "communication"}},
	{PreferredLabel: "Englisch", AltLabels: []string{"English", "Englischkenntnisse"}, Collections: []string{CollectionLanguage}},
	{PreferredLabel: "Deutsch", AltLabels: []string{"German", "Deutschkenntnisse"}, Collections: []string{CollectionLanguage}},
	{PreferredLabel: "wissenschaftliches Arbeiten", AltLabels: []string{"Forschung", "research"}, Collections: []string{CollectionResearch}},
	{PreferredLabel: "Lehre", AltLabels: []string{"Lehrtätigkeit", "teaching"}, Collections: []string{CollectionTransversal}},
}

// MinimalEntries returns the hardcoded vocabulary with synthetic URIs.
func MinimalEntries() []Entry {
	out := make([]Entry, len(minimalEntries))
	for i, e := range minimalEntries {
		e.AltLabels = append([]string(nil), e.AltLabels...)
		e.Collections = append([]string(nil), e.Collections...)
		e.URI = SyntheticURI("minimal", e.PreferredLabel)
		e.SourceDomain = "minimal"
		out[i] = e
	}
	return out
}
