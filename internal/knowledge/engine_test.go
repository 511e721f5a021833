package knowledge

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psti_chatbot/internal/nlp"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	facts, err := LoadFacts(filepath.Join("..", "..", "data", "knowledge.json"))
	require.NoError(t, err)
	return NewEngine(facts, nlp.NewNormalizer(nlp.RuleOptions()))
}

func TestEngine_Answers(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		query    string
		setup    string
		rule     string
		contains []string
	}{
		{"siapa perancang promet?", "", "project_developer", []string{"Promet", "mahasiswa", "Lab PSTI"}},
		{"siapa yang buat siapik?", "", "project_developer", []string{"SiApik", "Muhammad Alvin Fahreza"}},
		{"siapa developer Digital Twin SMK 8?", "", "project_developer", []string{"Digital Twin SMK 8", "Damar", "Luth"}},
		{"info tentang Smart Springkler", "", "project_detail", []string{"Smart Springkler", "Fathurahman Muiz"}},
		{"siapa yang buat siapik?", "project psti", "project_developer", []string{"SiApik", "Alvin"}},
		{"siapa ilham?", "", "student_profile", []string{"Muhammad Ilham Alparsy", "Koordinator"}},
		{"siapa farrel?", "", "student_profile", []string{"Alessandro Farrel", "CyberSecurity"}},
		{"siapa valentino?", "", "student_profile", []string{"Gabriel Valentino", "IoT Engineer"}},
		{"siapa cira?", "", "student_profile", []string{"Tiara Angel", "Web Architect"}},
		{"siapa luth?", "", "student_profile", []string{"Achmad Luth Fallah", "3D Modeling"}},
		{"siapa alvin?", "", "student_profile", []string{"Muhammad Alvin Fahreza", "IoT Engineer"}},
		{"mahasiswa reka 25", "", "cohort_list", []string{"Farel Fainaki", "Damar", "Alvin", "Fathur", "Nopal", "Luth"}},
		{"profil fathur", "", "student_profile", []string{"Fathurahman Muiz", "Smart Springkler"}},
		{"mahasiswa yang bisa iot", "", "skill_search", []string{"Gabriel", "Gery"}},
		{"mahasiswa yang bisa 3d modeling", "", "skill_search", []string{"Damar", "Luth", "Farel"}},
		{"mahasiswa web developer", "", "skill_search", []string{"Tiara", "Luth"}},
		{"project iot", "", "project_category", []string{"Apik", "SiApik", "Aqua Secure"}},
		{"project digital twin", "", "project_category", []string{"Digital Twin Lab PSTI", "Digital Twin SMK 8"}},
		{"kontak lab", "", "lab_contact", []string{"pstilab@ubl.ac.id", "0721"}},
		{"jam buka lab", "", "lab_hours", []string{"08:00", "17:00"}},
		{"siapa pembina lab?", "", "lab_supervisors", []string{"Ari", "Syarif", "Aldi"}},
		{"siapa aril?", "", "unknown_person", []string{"tidak menemukan", "aril"}},
		{"fasilitas lab apa saja", "", "lab_facilities", []string{"3D Printer"}},
		{"dimana lokasi lab psti", "", "lab_location", []string{"Gedung C Lantai 3"}},
		{"siapa saja anggota lab", "", "student_list", []string{"Nopal", "Tiara Angel"}},
		{"daftar projek", "", "project_list", []string{"Promet", "Smart Springkler"}},
		{"mahasiswa reka 2024", "", "cohort_list", []string{"Gery", "Tiara Angel"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ctx := Context{}
			if tt.setup != "" {
				if res, ok := engine.Answer(tt.setup, ctx); ok {
					ctx = res.Context
				}
			}
			res, ok := engine.Answer(tt.query, ctx)
			require.True(t, ok, "no rule matched")
			assert.Equal(t, tt.rule, res.Rule)
			for _, want := range tt.contains {
				assert.Contains(t, strings.ToLower(res.Answer), strings.ToLower(want))
			}
		})
	}
}

func TestEngine_LeavesUnrelatedToClassifier(t *testing.T) {
	engine := newTestEngine(t)
	for _, q := range []string{"halo", "apa itu psti", "terima kasih", "siapa kamu", "", "!!!", "ada 3d printer", "ar", "vr"} {
		_, ok := engine.Answer(q, Context{})
		assert.False(t, ok, "query %q", q)
	}
}

func TestEngine_SkillCues(t *testing.T) {
	engine := newTestEngine(t)

	// iot and cybersecurity answer on their own
	res, ok := engine.Answer("iot", Context{})
	require.True(t, ok)
	assert.Equal(t, "skill_search", res.Rule)

	// other technologies need a question about who has the skill
	_, ok = engine.Answer("web lab psti apa", Context{})
	assert.False(t, ok)
	res, ok = engine.Answer("siapa yang jago ar", Context{})
	require.True(t, ok)
	assert.Equal(t, "skill_search", res.Rule)
	assert.Contains(t, res.Answer, "VR/AR")
}

func TestEngine_StudentCarryOver(t *testing.T) {
	engine := newTestEngine(t)

	first, ok := engine.Answer("siapa alvin?", Context{})
	require.True(t, ok)
	assert.Equal(t, "Muhammad Alvin Fahreza", first.Context.Get(KeyLastStudent))

	// no name, only a pronoun
	next, ok := engine.Answer("apa skill dia?", first.Context)
	require.True(t, ok)
	assert.Equal(t, "student_followup", next.Rule)
	assert.Contains(t, next.Answer, "Muhammad Alvin Fahreza")
	assert.Contains(t, next.Answer, "Arduino")
	assert.NotContains(t, next.Answer, "Angkatan")

	projects, ok := engine.Answer("projectnya apa aja", first.Context)
	require.True(t, ok)
	assert.Equal(t, "student_followup", projects.Rule)
	assert.Contains(t, projects.Answer, "SiApik")

	// without context the pronoun alone does not answer
	_, ok = engine.Answer("apa skill dia?", Context{})
	assert.False(t, ok)
}

func TestEngine_DeveloperSetsBothEntities(t *testing.T) {
	engine := newTestEngine(t)

	res, ok := engine.Answer("siapa yang buat siapik?", Context{})
	require.True(t, ok)
	assert.Equal(t, "SiApik", res.Context.Get(KeyLastProject))
	assert.Equal(t, "Muhammad Alvin Fahreza", res.Context.Get(KeyLastStudent))

	follow, ok := engine.Answer("dia angkatan berapa", res.Context)
	require.True(t, ok)
	assert.Equal(t, "student_followup", follow.Rule)
	assert.Contains(t, follow.Answer, "Reka 2025")

	detail, ok := engine.Answer("jelaskan project tersebut", res.Context)
	require.True(t, ok)
	assert.Equal(t, "project_followup", detail.Rule)
	assert.Contains(t, detail.Answer, "kualitas air")

	// several developers: only the project is remembered
	res, ok = engine.Answer("siapa pembuat aqua secure", Context{})
	require.True(t, ok)
	assert.Equal(t, "Aqua Secure", res.Context.Get(KeyLastProject))
	assert.Empty(t, res.Context.Get(KeyLastStudent))

	again, ok := engine.Answer("siapa developer project itu", res.Context)
	require.True(t, ok)
	assert.Equal(t, "project_developer", again.Rule)
	assert.Contains(t, again.Answer, "Aqua Secure")
}

func TestEngine_DoesNotMutateContext(t *testing.T) {
	engine := newTestEngine(t)
	ctx := Context{"other": "value"}

	res, ok := engine.Answer("siapa alvin", ctx)
	require.True(t, ok)
	assert.Equal(t, Context{"other": "value"}, ctx)
	assert.Equal(t, "value", res.Context.Get("other"))
}

func TestEngine_FirstMatchWins(t *testing.T) {
	m := NewMatcher(&Facts{}, nlp.NewNormalizer(nlp.RuleOptions()))
	engine := NewEngineWithRules(m, staticRule{"a", "halo"}, staticRule{"b", "halo"})

	res, ok := engine.Answer("halo", nil)
	require.True(t, ok)
	assert.Equal(t, "a", res.Rule)
	assert.NotNil(t, res.Context)
}

type staticRule struct{ name, word string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !msg.Has(r.word) {
		return "", nil, false
	}
	return r.name, nil, true
}
